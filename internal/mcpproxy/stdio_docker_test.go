// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewDockerStdioUpstream_InitialState covers what's exercisable
// without a Docker daemon: a fresh upstream reports its name and is
// Unavailable until Start succeeds.
func TestNewDockerStdioUpstream_InitialState(t *testing.T) {
	u := NewDockerStdioUpstream("containerized-backend", "example.com/mcp-tools:latest", []string{"serve"}, []string{"FOO=bar"}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Equal(t, "containerized-backend", u.Name())
	require.False(t, u.IsAvailable())
}

// TestDockerStdioUpstream_CallBeforeStart covers the unavailable-upstream
// error path that doesn't require a Docker daemon.
func TestDockerStdioUpstream_CallBeforeStart(t *testing.T) {
	u := NewDockerStdioUpstream("containerized-backend", "example.com/mcp-tools:latest", nil, nil, nil, nil)
	_, err := u.Call(t.Context(), nil)
	require.Error(t, err)
}

// TestDockerStdioUpstream_CloseBeforeStart covers Close being a no-op
// when the container was never created.
func TestDockerStdioUpstream_CloseBeforeStart(t *testing.T) {
	u := NewDockerStdioUpstream("containerized-backend", "example.com/mcp-tools:latest", nil, nil, nil, nil)
	require.NoError(t, u.Close(t.Context()))
}
