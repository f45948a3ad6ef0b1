// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/nuwa-protocol/llm-gateway/internal/apierrors"
	"github.com/nuwa-protocol/llm-gateway/internal/metrics"
	"github.com/nuwa-protocol/llm-gateway/internal/router"
)

// Proxy dispatches incoming MCP JSON-RPC calls to the upstream resolved
// by an MCPRouter, relaying results (including streaming tool-call
// chunks as SSE) and preserving JSON-RPC error shapes on failure.
type Proxy struct {
	router  *router.MCPRouter
	log     *slog.Logger
	metrics metrics.MCPMetrics

	mu        sync.RWMutex
	upstreams map[string]Upstream
}

// NewProxy builds a Proxy with no registered upstreams; call Register
// for each configured MCP upstream before serving traffic.
func NewProxy(r *router.MCPRouter, log *slog.Logger) *Proxy {
	return &Proxy{router: r, log: log, upstreams: make(map[string]Upstream)}
}

// SetMetrics attaches an MCPMetrics recorder; nil (the default) disables
// instrumentation entirely.
func (p *Proxy) SetMetrics(m metrics.MCPMetrics) {
	p.metrics = m
}

// Register adds or replaces the upstream known by name.
func (p *Proxy) Register(name string, u Upstream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upstreams[name] = u
}

func (p *Proxy) lookup(name string) (Upstream, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.upstreams[name]
	return u, ok
}

// Status reports each registered upstream's name and availability, for
// the admin surface's status endpoint.
func (p *Proxy) Status() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.upstreams))
	for name, u := range p.upstreams {
		out[name] = u.IsAvailable()
	}
	return out
}

// toolNameFromParams extracts params.name for tool-dispatching methods
// (e.g. "tools/call"); other methods carry no tool name to match on.
func toolNameFromParams(req *jsonrpc.Request) string {
	if len(req.Params) == 0 {
		return ""
	}
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ""
	}
	return params.Name
}

// resolve matches req against the MCP route rules and returns the named
// upstream, or an apierrors.Error ready for the JSON-RPC error shape.
func (p *Proxy) resolve(req *jsonrpc.Request, callerDID, hostname string) (Upstream, *apierrors.Error) {
	call := router.MCPCall{
		Method:    req.Method,
		ToolName:  toolNameFromParams(req),
		CallerDid: callerDID,
		Hostname:  hostname,
	}
	name, ok := p.router.Resolve(call)
	if !ok {
		return nil, apierrors.NotFound("mcp_route_not_found", fmt.Sprintf("no mcp route matched method %q", req.Method))
	}
	u, ok := p.lookup(name)
	if !ok {
		return nil, apierrors.NotFound("mcp_upstream_unknown", fmt.Sprintf("mcp upstream %q is not registered", name))
	}
	if !u.IsAvailable() {
		return nil, apierrors.UpstreamUnavailable(fmt.Sprintf("mcp upstream %q is unavailable", name))
	}
	return u, nil
}

// Call resolves req's upstream and relays a single JSON-RPC call,
// returning a response whose Error field is populated in JSON-RPC shape
// on failure rather than a transport-level error, so callers can always
// write back a well-formed JSON-RPC message.
func (p *Proxy) Call(ctx context.Context, req *jsonrpc.Request, callerDID, hostname string) *jsonrpc.Response {
	start := time.Now()
	u, apiErr := p.resolve(req, callerDID, hostname)
	if apiErr != nil {
		return errorResponse(req, apiErr)
	}

	resp, err := u.Call(ctx, req)
	if err != nil {
		if p.log != nil {
			p.log.Warn("mcp upstream call failed", slog.String("upstream", u.Name()), slog.Any("err", err), slog.Duration("elapsed", time.Since(start)))
		}
		if p.metrics != nil {
			p.metrics.RecordMethodErrorCount(ctx, nil)
			p.metrics.RecordRequestErrorDuration(ctx, &start, metrics.MCPErrorInternal, nil)
		}
		return errorResponse(req, apierrors.UpstreamPreByte(err))
	}
	if p.metrics != nil {
		p.metrics.RecordMethodCount(ctx, req.Method, nil)
		p.metrics.RecordRequestDuration(ctx, &start, nil)
	}
	return resp
}

// CallStream resolves req's upstream and relays a streaming tool call,
// writing SSE frames directly to w. If the resolved upstream does not
// support streaming, its non-streaming Call result is written as a
// single SSE frame instead.
func (p *Proxy) CallStream(ctx context.Context, req *jsonrpc.Request, callerDID, hostname string, w http.ResponseWriter) error {
	start := time.Now()
	u, apiErr := p.resolve(req, callerDID, hostname)
	if apiErr != nil {
		writeSSEJSONRPCError(w, req, apiErr)
		return nil
	}

	if su, ok := u.(StreamingUpstream); ok {
		if err := su.CallStream(ctx, req, w); err != nil {
			if p.log != nil {
				p.log.Warn("mcp upstream stream failed", slog.String("upstream", u.Name()), slog.Any("err", err))
			}
			if p.metrics != nil {
				p.metrics.RecordMethodErrorCount(ctx, nil)
				p.metrics.RecordRequestErrorDuration(ctx, &start, metrics.MCPErrorInternal, nil)
			}
			writeSSEJSONRPCError(w, req, apierrors.UpstreamPreByte(err))
			return nil
		}
		if p.metrics != nil {
			p.metrics.RecordMethodCount(ctx, req.Method, nil)
			p.metrics.RecordRequestDuration(ctx, &start, nil)
		}
		return nil
	}

	resp, err := u.Call(ctx, req)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordMethodErrorCount(ctx, nil)
			p.metrics.RecordRequestErrorDuration(ctx, &start, metrics.MCPErrorInternal, nil)
		}
		writeSSEJSONRPCError(w, req, apierrors.UpstreamPreByte(err))
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordMethodCount(ctx, req.Method, nil)
		p.metrics.RecordRequestDuration(ctx, &start, nil)
	}
	ev := &sseEvent{messages: []jsonrpc.Message{resp}}
	ev.writeAndMaybeFlush(w)
	return nil
}

// Close shuts down every registered upstream, collecting (not failing
// fast on) per-upstream errors.
func (p *Proxy) Close(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var firstErr error
	for name, u := range p.upstreams {
		if err := u.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close mcp upstream %s: %w", name, err)
		}
	}
	return firstErr
}

func errorResponse(req *jsonrpc.Request, apiErr *apierrors.Error) *jsonrpc.Response {
	rpcErr := apiErr.ToJSONRPC()
	return &jsonrpc.Response{
		ID:    req.ID,
		Error: &jsonrpc.Error{Code: int64(rpcErr.Code), Message: rpcErr.Message},
	}
}

func writeSSEJSONRPCError(w http.ResponseWriter, req *jsonrpc.Request, apiErr *apierrors.Error) {
	resp := errorResponse(req, apiErr)
	ev := &sseEvent{messages: []jsonrpc.Message{resp}}
	ev.writeAndMaybeFlush(w)
}
