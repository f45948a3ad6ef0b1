// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"
)

// respondScript reads and discards one line from stdin, then writes a
// fixed JSON-RPC response line, simulating a trivial MCP stdio server.
const respondScript = `read -r _; printf '{"jsonrpc":"2.0","id":"1","result":{"ok":true}}\n'`

func newRespondingUpstream(t *testing.T) *StdioUpstream {
	t.Helper()
	u := NewStdioUpstream("responder", []string{"/bin/sh", "-c", respondScript}, "", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, u.Start(t.Context()))
	t.Cleanup(func() { _ = u.Close(t.Context()) })
	return u
}

func TestStdioUpstream_CallRoundTrip(t *testing.T) {
	u := newRespondingUpstream(t)
	require.True(t, u.IsAvailable())

	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)

	resp, err := u.Call(t.Context(), &jsonrpc.Request{Method: "ping", ID: id})
	require.NoError(t, err)
	require.Equal(t, id, resp.ID)
}

func TestStdioUpstream_BecomesUnavailableOnExit(t *testing.T) {
	u := NewStdioUpstream("dies", []string{"/bin/sh", "-c", "exit 1"}, "", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, u.Start(t.Context()))

	require.Eventually(t, func() bool { return !u.IsAvailable() }, 2*time.Second, 10*time.Millisecond)
}

func TestStdioUpstream_Close(t *testing.T) {
	u := newRespondingUpstream(t)
	require.NoError(t, u.Close(t.Context()))
}

func TestStdioUpstream_RestartOnCrash(t *testing.T) {
	u := NewStdioUpstream("crasher", []string{"/bin/sh", "-c", "exit 1"}, "", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, u.Start(t.Context()))
	t.Cleanup(func() { _ = u.Close(t.Context()) })

	require.Eventually(t, func() bool { return !u.IsAvailable() }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return u.IsAvailable() }, 2*time.Second, 10*time.Millisecond)
}

func TestStdioUpstream_RestartNeverStaysDown(t *testing.T) {
	u := NewStdioUpstream("crasher", []string{"/bin/sh", "-c", "exit 1"}, "", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	u.SetRestartPolicy(RestartNever)
	require.NoError(t, u.Start(t.Context()))
	t.Cleanup(func() { _ = u.Close(t.Context()) })

	require.Eventually(t, func() bool { return !u.IsAvailable() }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.False(t, u.IsAvailable())
}

func TestStdioUpstream_CloseSuppressesRestart(t *testing.T) {
	u := newRespondingUpstream(t)
	require.NoError(t, u.Close(t.Context()))
	time.Sleep(100 * time.Millisecond)
	require.False(t, u.IsAvailable())
}
