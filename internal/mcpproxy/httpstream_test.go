// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"
)

func TestHTTPStreamUpstream_Call(t *testing.T) {
	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		resp := &jsonrpc.Response{ID: id, Result: []byte(`{"ok":true}`)}
		body, err := jsonrpc.EncodeMessage(resp)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	u := NewHTTPStreamUpstream("demo", srv.URL, "Authorization", "Bearer tok", srv.Client())
	require.True(t, u.IsAvailable())

	resp, err := u.Call(t.Context(), &jsonrpc.Request{Method: "tools/call", ID: id})
	require.NoError(t, err)
	require.Equal(t, id, resp.ID)
	require.Nil(t, resp.Error)
}

func TestHTTPStreamUpstream_CallMarksUnavailableOnTransportError(t *testing.T) {
	u := NewHTTPStreamUpstream("demo", "http://127.0.0.1:0", "", "", http.DefaultClient)
	_, err := u.Call(t.Context(), &jsonrpc.Request{Method: "ping"})
	require.Error(t, err)
	require.False(t, u.IsAvailable())
}

func TestHTTPStreamUpstream_CallStreamRelaysSSE(t *testing.T) {
	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		resp := &jsonrpc.Response{ID: id, Result: []byte(`{"chunk":1}`)}
		body, err := jsonrpc.EncodeMessage(resp)
		require.NoError(t, err)
		_, _ = w.Write([]byte("event: message\ndata: "))
		_, _ = w.Write(body)
		_, _ = w.Write([]byte("\n\n"))
	}))
	defer srv.Close()

	u := NewHTTPStreamUpstream("demo", srv.URL, "", "", srv.Client())
	rec := httptest.NewRecorder()
	err = u.CallStream(t.Context(), &jsonrpc.Request{Method: "tools/call", ID: id}, rec)
	require.NoError(t, err)
	require.Contains(t, rec.Body.String(), "event: message")
}
