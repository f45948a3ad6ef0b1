// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/nuwa-protocol/llm-gateway/internal/router"
)

type fakeUpstream struct {
	name      string
	available bool
	resp      *jsonrpc.Response
	err       error
}

func (f *fakeUpstream) Name() string       { return f.name }
func (f *fakeUpstream) IsAvailable() bool  { return f.available }
func (f *fakeUpstream) Close(context.Context) error { return nil }
func (f *fakeUpstream) Call(context.Context, *jsonrpc.Request) (*jsonrpc.Response, error) {
	return f.resp, f.err
}

func newTestLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProxy_CallRoutesToMatchedUpstream(t *testing.T) {
	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)

	rules := []router.MCPRule{{MatchTool: "search", TargetUpstream: "search-backend"}}
	p := NewProxy(router.NewMCPRouter(rules, ""), newTestLog())
	p.Register("search-backend", &fakeUpstream{name: "search-backend", available: true, resp: &jsonrpc.Response{ID: id}})

	req := &jsonrpc.Request{Method: "tools/call", ID: id, Params: []byte(`{"name":"search"}`)}
	resp := p.Call(t.Context(), req, "did:example:caller", "gateway.local")
	require.Nil(t, resp.Error)
	require.Equal(t, id, resp.ID)
}

func TestProxy_CallNoRouteMatch(t *testing.T) {
	p := NewProxy(router.NewMCPRouter(nil, ""), newTestLog())
	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)

	resp := p.Call(t.Context(), &jsonrpc.Request{Method: "tools/call", ID: id}, "did:example:caller", "")
	require.NotNil(t, resp.Error)
}

func TestProxy_CallUnavailableUpstream(t *testing.T) {
	rules := []router.MCPRule{{MatchTool: "search", TargetUpstream: "down"}}
	p := NewProxy(router.NewMCPRouter(rules, ""), newTestLog())
	p.Register("down", &fakeUpstream{name: "down", available: false})

	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)
	resp := p.Call(t.Context(), &jsonrpc.Request{Method: "tools/call", ID: id, Params: []byte(`{"name":"search"}`)}, "", "")
	require.NotNil(t, resp.Error)
}

func TestProxy_CallUpstreamError(t *testing.T) {
	rules := []router.MCPRule{{MatchTool: "search", TargetUpstream: "flaky"}}
	p := NewProxy(router.NewMCPRouter(rules, ""), newTestLog())
	p.Register("flaky", &fakeUpstream{name: "flaky", available: true, err: errors.New("boom")})

	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)
	resp := p.Call(t.Context(), &jsonrpc.Request{Method: "tools/call", ID: id, Params: []byte(`{"name":"search"}`)}, "", "")
	require.NotNil(t, resp.Error)
}

func TestProxy_CallStreamFallsBackToSingleFrame(t *testing.T) {
	rules := []router.MCPRule{{MatchTool: "search", TargetUpstream: "search-backend"}}
	p := NewProxy(router.NewMCPRouter(rules, ""), newTestLog())
	id, err := jsonrpc.MakeID("1")
	require.NoError(t, err)
	p.Register("search-backend", &fakeUpstream{name: "search-backend", available: true, resp: &jsonrpc.Response{ID: id}})

	rec := httptest.NewRecorder()
	req := &jsonrpc.Request{Method: "tools/call", ID: id, Params: []byte(`{"name":"search"}`)}
	require.NoError(t, p.CallStream(t.Context(), req, "", "", rec))
	require.Contains(t, rec.Body.String(), "data: ")
}

func TestProxy_Status(t *testing.T) {
	p := NewProxy(router.NewMCPRouter(nil, ""), newTestLog())
	p.Register("a", &fakeUpstream{name: "a", available: true})
	p.Register("b", &fakeUpstream{name: "b", available: false})

	status := p.Status()
	require.True(t, status["a"])
	require.False(t, status["b"])
}

func TestProxy_Close(t *testing.T) {
	p := NewProxy(router.NewMCPRouter(nil, ""), newTestLog())
	p.Register("a", &fakeUpstream{name: "a", available: true})
	require.NoError(t, p.Close(t.Context()))
}
