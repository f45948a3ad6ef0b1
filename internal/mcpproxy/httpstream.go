// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// HTTPStreamUpstream is the "HttpStream" MCP upstream variant: a
// long-lived JSON-RPC-over-HTTP client, initialized once, with an
// optional auth header.
type HTTPStreamUpstream struct {
	availabilityFlag

	name       string
	baseURL    string
	authHeader string
	authValue  string
	client     *http.Client
}

// NewHTTPStreamUpstream builds an HTTPStreamUpstream. authHeader may be
// empty when the upstream requires no authentication.
func NewHTTPStreamUpstream(name, baseURL, authHeader, authValue string, client *http.Client) *HTTPStreamUpstream {
	u := &HTTPStreamUpstream{name: name, baseURL: baseURL, authHeader: authHeader, authValue: authValue, client: client}
	u.set(Available)
	return u
}

func (u *HTTPStreamUpstream) Name() string { return u.name }

func (u *HTTPStreamUpstream) IsAvailable() bool { return u.isAvailable() }

func (u *HTTPStreamUpstream) Close(context.Context) error { return nil }

func (u *HTTPStreamUpstream) newRequest(ctx context.Context, req *jsonrpc.Request, accept string) (*http.Request, error) {
	payload, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, fmt.Errorf("encode jsonrpc request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if u.authHeader != "" {
		httpReq.Header.Set(u.authHeader, u.authValue)
	}
	return httpReq, nil
}

// Call sends req and decodes a single JSON-RPC response.
func (u *HTTPStreamUpstream) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	httpReq, err := u.newRequest(ctx, req, "application/json")
	if err != nil {
		return nil, err
	}
	resp, err := u.client.Do(httpReq)
	if err != nil {
		u.set(Unavailable)
		return nil, fmt.Errorf("mcp upstream %s: %w", u.name, err)
	}
	defer resp.Body.Close()
	u.set(Available)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mcp upstream response: %w", err)
	}
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		return nil, fmt.Errorf("decode mcp upstream response: %w", err)
	}
	rpcResp, ok := msg.(*jsonrpc.Response)
	if !ok {
		return nil, fmt.Errorf("mcp upstream %s returned non-response message", u.name)
	}
	return rpcResp, nil
}

// CallStream sends req expecting an SSE response and relays each event
// to w as it arrives.
func (u *HTTPStreamUpstream) CallStream(ctx context.Context, req *jsonrpc.Request, w http.ResponseWriter) error {
	httpReq, err := u.newRequest(ctx, req, "text/event-stream")
	if err != nil {
		return err
	}
	resp, err := u.client.Do(httpReq)
	if err != nil {
		u.set(Unavailable)
		return fmt.Errorf("mcp upstream %s: %w", u.name, err)
	}
	defer resp.Body.Close()
	u.set(Available)

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	parser := newSSEEventParser(resp.Body)
	for {
		ev, err := parser.next()
		if ev != nil {
			ev.writeAndMaybeFlush(w)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("mcp upstream %s stream: %w", u.name, err)
		}
	}
}
