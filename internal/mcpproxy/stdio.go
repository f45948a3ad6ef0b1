// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcpproxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// defaultCloseGrace bounds how long Close waits for a stdio child to
// exit on its own before sending SIGKILL.
const defaultCloseGrace = 5 * time.Second

// StdioUpstream is the "Stdio" MCP upstream variant: a child process
// speaking line-delimited JSON-RPC over stdin/stdout. It is spawned at
// startup and, on exit, marks itself unavailable until it is restarted,
// either automatically according to its RestartPolicy (on-crash by
// default) or by an explicit Start call.
type StdioUpstream struct {
	availabilityFlag

	name    string
	argv    []string
	cwd     string
	env     []string
	log     *slog.Logger

	restartPolicy RestartPolicy
	closing       atomic.Bool

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	exited chan struct{}
}

// NewStdioUpstream builds a StdioUpstream that has not yet been started.
// argv[0] is the command, argv[1:] its arguments. env entries follow
// os/exec's KEY=VALUE convention and overlay (do not replace) the
// parent environment.
func NewStdioUpstream(name string, argv []string, cwd string, env []string, log *slog.Logger) *StdioUpstream {
	u := &StdioUpstream{name: name, argv: argv, cwd: cwd, env: env, log: log, restartPolicy: RestartOnCrash}
	u.set(Unavailable)
	return u
}

// SetRestartPolicy overrides the default on-crash restart policy.
func (u *StdioUpstream) SetRestartPolicy(p RestartPolicy) { u.restartPolicy = p }

func (u *StdioUpstream) Name() string { return u.name }

func (u *StdioUpstream) IsAvailable() bool { return u.isAvailable() }

// Start spawns the child process. Callers must call Start before the
// first Call; a failed or exited child is restarted by calling Start
// again.
func (u *StdioUpstream) Start(ctx context.Context) error {
	u.closing.Store(false)

	u.mu.Lock()
	defer u.mu.Unlock()

	cmd := exec.CommandContext(ctx, u.argv[0], u.argv[1:]...)
	cmd.Dir = u.cwd
	if len(u.env) > 0 {
		cmd.Env = append(cmd.Environ(), u.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp stdio upstream %s: stdin pipe: %w", u.name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp stdio upstream %s: stdout pipe: %w", u.name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mcp stdio upstream %s: start: %w", u.name, err)
	}

	u.cmd = cmd
	u.stdin = stdin
	u.stdout = bufio.NewReader(stdout)
	u.exited = make(chan struct{})
	u.set(Available)

	go u.awaitExit()

	return nil
}

// awaitExit watches the child and marks the upstream unavailable on
// termination, so routes to it return 503 until restarted (either
// automatically, per restartPolicy, or via an explicit Start call).
func (u *StdioUpstream) awaitExit() {
	u.mu.Lock()
	cmd := u.cmd
	exited := u.exited
	u.mu.Unlock()

	err := cmd.Wait()
	u.set(Unavailable)
	close(exited)
	if u.log != nil {
		u.log.Warn("mcp stdio upstream exited", slog.String("upstream", u.name), slog.Any("err", err))
	}

	if u.closing.Load() {
		return
	}
	crashed := err != nil
	restart := u.restartPolicy == RestartOnExit || (u.restartPolicy == RestartOnCrash && crashed)
	if !restart {
		return
	}
	if err := u.Start(context.Background()); err != nil && u.log != nil {
		u.log.Error("mcp stdio upstream restart failed", slog.String("upstream", u.name), slog.Any("err", err))
	}
}

// Call writes req as a single JSON-RPC line and reads back one
// line-delimited JSON-RPC response.
func (u *StdioUpstream) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if !u.IsAvailable() {
		return nil, fmt.Errorf("mcp stdio upstream %s is unavailable", u.name)
	}

	u.mu.Lock()
	stdin := u.stdin
	stdout := u.stdout
	u.mu.Unlock()

	payload, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, fmt.Errorf("encode jsonrpc request: %w", err)
	}

	type result struct {
		resp *jsonrpc.Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		if _, err := stdin.Write(append(bytes.TrimRight(payload, "\n"), '\n')); err != nil {
			done <- result{err: fmt.Errorf("write to mcp stdio upstream %s: %w", u.name, err)}
			return
		}
		line, err := stdout.ReadBytes('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("read from mcp stdio upstream %s: %w", u.name, err)}
			return
		}
		msg, err := jsonrpc.DecodeMessage(bytes.TrimSpace(line))
		if err != nil {
			done <- result{err: fmt.Errorf("decode response from mcp stdio upstream %s: %w", u.name, err)}
			return
		}
		resp, ok := msg.(*jsonrpc.Response)
		if !ok {
			done <- result{err: fmt.Errorf("mcp stdio upstream %s returned non-response message", u.name)}
			return
		}
		done <- result{resp: resp}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.resp, r.err
	}
}

// Close asks the child to exit cleanly, bounded by defaultCloseGrace,
// then escalates to SIGKILL.
func (u *StdioUpstream) Close(ctx context.Context) error {
	u.closing.Store(true)

	u.mu.Lock()
	cmd := u.cmd
	stdin := u.stdin
	exited := u.exited
	u.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = stdin.Close()

	select {
	case <-exited:
		return nil
	case <-time.After(defaultCloseGrace):
	case <-ctx.Done():
	}

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("mcp stdio upstream %s: kill: %w", u.name, err)
	}
	<-exited
	return nil
}

// CallStream is not supported for stdio upstreams: MCP streaming tool
// calls arrive framed as SSE only over HTTP transports, so
// stdio upstreams never implement StreamingUpstream.
var _ Upstream = (*StdioUpstream)(nil)
