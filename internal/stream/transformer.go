// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream copies an upstream streaming response to the client
// while extracting usage from it. The tee'd bytes are never rewritten:
// each chunk is written to the client first and only then fed to the
// usage extractor, inline before the next read, so the usage parse never
// alters what the caller receives.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

// State is the lifecycle of one streaming response transform.
type State int

const (
	// StateInitial: no bytes have been copied to the client yet.
	StateInitial State = iota
	// StateStreaming: at least one chunk has been copied to the client
	// and the upstream has not yet signalled completion.
	StateStreaming
	// StateTerminating: the upstream's termination signal has been
	// observed (e.g. "data: [DONE]" or EOF); any remaining buffered
	// bytes are being flushed to the client.
	StateTerminating
	// StateFinalized: copying is complete and the usage callback, if
	// any, has fired exactly once. A Transformer never leaves this
	// state once entered.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateStreaming:
		return "streaming"
	case StateTerminating:
		return "terminating"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Result is handed to the OnFinal callback once a transform completes.
type Result struct {
	Usage        *usage.Usage // nil when the upstream never reported one (not an error)
	BytesCopied  int64
	UpstreamErr  error // non-nil when the copy stopped early because Read failed
}

// Transformer copies dst from src while running chunks through a
// usage.StreamState, one per in-flight request. It is not
// safe for concurrent use; create one per request.
type Transformer struct {
	dst   io.Writer
	src   io.Reader
	state *usage.StreamState
	log   *slog.Logger

	onFinal func(Result)

	phase       State
	bytesCopied int64
}

// New builds a Transformer. extractor may be nil, in which case no usage
// is ever extracted (used for providers/routes with no known usage
// format); onFinal may be nil if the caller doesn't need the result.
func New(dst io.Writer, src io.Reader, extractor usage.Extractor, log *slog.Logger, onFinal func(Result)) *Transformer {
	t := &Transformer{dst: dst, src: src, log: log, onFinal: onFinal, phase: StateInitial}
	if extractor != nil {
		st := extractor.NewStreamState()
		t.state = &st
	}
	return t
}

// State returns the transformer's current lifecycle state.
func (t *Transformer) State() State { return t.phase }

// Run copies src to dst until EOF, ctx cancellation, or a read/write
// error, feeding every chunk through the usage extractor and invoking
// onFinal exactly once before returning. It returns the same error it
// would report via Result.UpstreamErr, for callers that want the plain
// error-handling path too.
func (t *Transformer) Run(ctx context.Context) error {
	buf := make([]byte, 32*1024)
	var upstreamErr error

runLoop:
	for {
		select {
		case <-ctx.Done():
			upstreamErr = ctx.Err()
			break runLoop
		default:
		}

		n, readErr := t.src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if t.phase == StateInitial {
				t.phase = StateStreaming
			}

			if _, writeErr := t.dst.Write(chunk); writeErr != nil {
				upstreamErr = fmt.Errorf("write to client: %w", writeErr)
				break runLoop
			}
			t.bytesCopied += int64(n)

			if t.state != nil {
				if _, done := (*t.state).Feed(chunk); done {
					t.phase = StateTerminating
				}
			}
		}

		if readErr != nil {
			if readErr != io.EOF {
				upstreamErr = fmt.Errorf("read upstream: %w", readErr)
			}
			break runLoop
		}
	}

	t.finalize(upstreamErr)
	return upstreamErr
}

func (t *Transformer) finalize(upstreamErr error) {
	if t.phase == StateFinalized {
		return
	}
	t.phase = StateFinalized

	var u *usage.Usage
	if t.state != nil {
		u = (*t.state).Final()
	}
	if u == nil && t.log != nil {
		t.log.Debug("stream ended without usage", slog.Int64("bytes_copied", t.bytesCopied))
	}

	if t.onFinal != nil {
		t.onFinal(Result{Usage: u, BytesCopied: t.bytesCopied, UpstreamErr: upstreamErr})
	}
}
