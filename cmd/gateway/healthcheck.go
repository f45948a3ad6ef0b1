// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// healthcheck performs an HTTP GET against a running gateway's admin
// /healthz endpoint, suitable for a Docker HEALTHCHECK entrypoint.
func healthcheck(ctx context.Context, port int, stdout io.Writer) error {
	url := fmt.Sprintf("http://localhost:%d/healthz", port)

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build healthcheck request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to admin server: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d, body: %s", resp.StatusCode, string(body))
	}

	_, _ = fmt.Fprintf(stdout, "%s", body)
	return nil
}
