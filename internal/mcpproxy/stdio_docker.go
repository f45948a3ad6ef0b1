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
	"sync"
	"sync/atomic"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// DockerStdioUpstream is the containerized variant of the Stdio MCP
// upstream: instead of spawning a local child process it runs the MCP
// server inside a Docker container and speaks line-delimited JSON-RPC
// over the container's attached stdio streams, demultiplexed with
// stdcopy since Docker multiplexes stdout/stderr onto one connection.
type DockerStdioUpstream struct {
	availabilityFlag

	name  string
	image string
	cmd   []string
	env   []string
	cli   *client.Client
	log   *slog.Logger

	restartPolicy RestartPolicy
	closing       atomic.Bool

	mu          sync.Mutex
	containerID string
	conn        io.Closer
	stdin       io.Writer
	stdout      *bufio.Reader
	exited      chan struct{}
}

// NewDockerStdioUpstream builds a DockerStdioUpstream bound to an
// already-configured Docker client. cmd, when non-empty, overrides the
// image's default entrypoint arguments; env entries follow the
// KEY=VALUE convention.
func NewDockerStdioUpstream(name, image string, cmd []string, env []string, cli *client.Client, log *slog.Logger) *DockerStdioUpstream {
	u := &DockerStdioUpstream{name: name, image: image, cmd: cmd, env: env, cli: cli, log: log, restartPolicy: RestartOnCrash}
	u.set(Unavailable)
	return u
}

// SetRestartPolicy overrides the default on-crash restart policy.
func (u *DockerStdioUpstream) SetRestartPolicy(p RestartPolicy) { u.restartPolicy = p }

func (u *DockerStdioUpstream) Name() string { return u.name }

func (u *DockerStdioUpstream) IsAvailable() bool { return u.isAvailable() }

// Start creates and attaches to the container, then begins demuxing its
// stdout stream in the background. Callers must call Start before the
// first Call; a container that exits marks the upstream Unavailable
// until Start is called again.
func (u *DockerStdioUpstream) Start(ctx context.Context) error {
	u.closing.Store(false)

	u.mu.Lock()
	defer u.mu.Unlock()

	created, err := u.cli.ContainerCreate(ctx, &container.Config{
		Image:        u.image,
		Cmd:          u.cmd,
		Env:          u.env,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}, nil, nil, nil, "")
	if err != nil {
		return fmt.Errorf("mcp docker upstream %s: create container: %w", u.name, err)
	}

	hijack, err := u.cli.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("mcp docker upstream %s: attach: %w", u.name, err)
	}

	if err := u.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		hijack.Close()
		return fmt.Errorf("mcp docker upstream %s: start container: %w", u.name, err)
	}

	stdoutR, stdoutW := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(stdoutW, io.Discard, hijack.Reader)
		_ = stdoutW.CloseWithError(copyErr)
	}()

	u.containerID = created.ID
	u.conn = hijack.Conn
	u.stdin = hijack.Conn
	u.stdout = bufio.NewReader(stdoutR)
	u.exited = make(chan struct{})
	u.set(Available)

	go u.awaitExit()

	return nil
}

// awaitExit blocks on the container's wait condition and marks the
// upstream unavailable once it stops running, then respawns per
// restartPolicy the same way StdioUpstream does.
func (u *DockerStdioUpstream) awaitExit() {
	u.mu.Lock()
	cli := u.cli
	id := u.containerID
	exited := u.exited
	u.mu.Unlock()

	crashed := false
	statusCh, errCh := cli.ContainerWait(context.Background(), id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		crashed = true
		if u.log != nil {
			u.log.Warn("mcp docker upstream wait failed", slog.String("upstream", u.name), slog.Any("err", err))
		}
	case status := <-statusCh:
		crashed = status.StatusCode != 0
	}
	u.set(Unavailable)
	close(exited)

	if u.closing.Load() {
		return
	}
	restart := u.restartPolicy == RestartOnExit || (u.restartPolicy == RestartOnCrash && crashed)
	if !restart {
		return
	}
	if err := u.Start(context.Background()); err != nil && u.log != nil {
		u.log.Error("mcp docker upstream restart failed", slog.String("upstream", u.name), slog.Any("err", err))
	}
}

// Call writes req as a single JSON-RPC line to the container's stdin
// and reads back one line-delimited JSON-RPC response from its
// demuxed stdout, the same framing StdioUpstream uses.
func (u *DockerStdioUpstream) Call(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if !u.IsAvailable() {
		return nil, fmt.Errorf("mcp docker upstream %s is unavailable", u.name)
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
			done <- result{err: fmt.Errorf("write to mcp docker upstream %s: %w", u.name, err)}
			return
		}
		line, err := stdout.ReadBytes('\n')
		if err != nil {
			done <- result{err: fmt.Errorf("read from mcp docker upstream %s: %w", u.name, err)}
			return
		}
		msg, err := jsonrpc.DecodeMessage(bytes.TrimSpace(line))
		if err != nil {
			done <- result{err: fmt.Errorf("decode response from mcp docker upstream %s: %w", u.name, err)}
			return
		}
		resp, ok := msg.(*jsonrpc.Response)
		if !ok {
			done <- result{err: fmt.Errorf("mcp docker upstream %s returned non-response message", u.name)}
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

// Close stops and removes the container, releasing the attached
// connection. Bounded by defaultCloseGrace before escalating to a
// forced stop, same as StdioUpstream's SIGKILL escalation.
func (u *DockerStdioUpstream) Close(ctx context.Context) error {
	u.closing.Store(true)

	u.mu.Lock()
	cli := u.cli
	id := u.containerID
	conn := u.conn
	exited := u.exited
	u.mu.Unlock()

	if id == "" {
		return nil
	}

	if conn != nil {
		_ = conn.Close()
	}

	timeout := int(defaultCloseGrace.Seconds())
	_ = cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})

	select {
	case <-exited:
	case <-ctx.Done():
	}

	if err := cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("mcp docker upstream %s: remove container: %w", u.name, err)
	}
	return nil
}

// CallStream is not supported for docker upstreams: MCP streaming tool
// calls arrive framed as SSE only over HTTP transports, so docker
// upstreams never implement StreamingUpstream.
var _ Upstream = (*DockerStdioUpstream)(nil)
