// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcpproxy implements the MCP Proxy Layer: it
// relays JSON-RPC calls to either an HTTP-stream or a stdio MCP
// upstream, matched by the Router, and streams tool-call chunks back as
// SSE when the incoming transport is HTTP.
package mcpproxy

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Availability tracks whether an upstream can currently accept requests.
// A stdio upstream whose child process exits marks itself Unavailable
// until it is restarted, automatically per its RestartPolicy or by an
// explicit Start.
type Availability int32

const (
	Available Availability = iota
	Unavailable
)

// Upstream is implemented by the MCP upstream kinds: HttpStream, and
// Stdio in both its os/exec and Docker-launched variants.
type Upstream interface {
	// Name identifies this upstream for routing and logging.
	Name() string

	// Call sends one JSON-RPC request to the upstream and returns its
	// response. For streaming tool calls the upstream may instead
	// deliver a sequence of messages; callers that care about streaming
	// use CallStream.
	Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

	// IsAvailable reports whether the upstream currently accepts calls.
	IsAvailable() bool

	// Close releases any resources (connections, child processes) held
	// by this upstream.
	Close(ctx context.Context) error
}

// StreamingUpstream is implemented by upstreams that can relay
// streaming tool-call chunks; HttpStream upstreams
// typically support this, since MCP streaming responses ride the same
// HTTP connection as SSE.
type StreamingUpstream interface {
	Upstream
	CallStream(ctx context.Context, req *jsonrpc.Request, w http.ResponseWriter) error
}

// RestartPolicy controls whether a process-backed MCP upstream (stdio
// or docker) respawns its child after it exits.
type RestartPolicy int

const (
	// RestartOnCrash respawns only when the child exits non-zero or is
	// killed by a signal, never after a clean "exit 0" — the default,
	// since a zero exit usually means deliberate shutdown.
	RestartOnCrash RestartPolicy = iota
	// RestartNever leaves the upstream Unavailable once its child exits,
	// regardless of exit status.
	RestartNever
	// RestartOnExit always respawns, even after a clean exit.
	RestartOnExit
)

// ParseRestartPolicy parses the three restart-policy names accepted in
// upstream configuration ("never", "on-exit", "on-crash").
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "on-crash":
		return RestartOnCrash, nil
	case "never":
		return RestartNever, nil
	case "on-exit":
		return RestartOnExit, nil
	default:
		return 0, fmt.Errorf("unknown mcp stdio restart policy %q", s)
	}
}

// availabilityFlag is a small atomic helper shared by both upstream
// kinds, so Availability transitions never race with Call/IsAvailable.
type availabilityFlag struct {
	v atomic.Int32
}

func (a *availabilityFlag) set(s Availability) { a.v.Store(int32(s)) }

func (a *availabilityFlag) get() Availability { return Availability(a.v.Load()) }

func (a *availabilityFlag) isAvailable() bool { return a.get() == Available }
