// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package billing implements the external payment hook the Request
// Orchestrator consults before and after forwarding a request.
package billing

import (
	"context"
	"log/slog"

	"github.com/nuwa-protocol/llm-gateway/internal/apierrors"
	"github.com/nuwa-protocol/llm-gateway/internal/pricing"
)

// Meta is the subset of the request context a billing Hook needs: it
// never sees the request/response bodies, only identifying and
// accounting information.
type Meta struct {
	RequestID string
	CallerDID string
	Provider  string
	Model     string
	Streaming bool
}

// Hook is the external payment integration point. Authorize is called
// before the request is forwarded, and may reject it with a
// RateLimitError. Record is called after the response
// completes and is best-effort: its failures are logged and never mask
// a successful upstream response.
type Hook interface {
	// Authorize decides whether meta's caller may proceed. A non-nil
	// error must be an *apierrors.Error; RateLimited is the expected
	// rejection, but any Kind propagates as given.
	Authorize(ctx context.Context, meta Meta) error

	// Record reports the outcome of a completed request. cost is nil
	// when no cost could be computed (e.g. the provider doesn't support
	// native cost and no pricing entry resolved).
	Record(ctx context.Context, meta Meta, cost *pricing.Cost)
}

// LoggingHook is a Hook that authorizes every request unconditionally
// and records outcomes via structured logging. It is the default when
// no external payment service is configured.
type LoggingHook struct {
	log *slog.Logger
}

// NewLoggingHook builds a LoggingHook that writes to log.
func NewLoggingHook(log *slog.Logger) *LoggingHook {
	return &LoggingHook{log: log}
}

func (h *LoggingHook) Authorize(context.Context, Meta) error { return nil }

func (h *LoggingHook) Record(_ context.Context, meta Meta, cost *pricing.Cost) {
	attrs := []any{
		slog.String("request_id", meta.RequestID),
		slog.String("caller_did", meta.CallerDID),
		slog.String("provider", meta.Provider),
		slog.String("model", meta.Model),
	}
	if cost != nil {
		attrs = append(attrs,
			slog.String("cost_usd", cost.CostUSD.String()),
			slog.String("cost_source", string(cost.Source)),
		)
	}
	h.log.Info("billing record", attrs...)
}

// chainHook runs multiple hooks in sequence: Authorize stops at the
// first rejection; Record invokes all of them regardless of individual
// failures, since one hook's bookkeeping error must not suppress
// another's.
type chainHook struct {
	hooks []Hook
	log   *slog.Logger
}

// Chain combines hooks into one, useful when both a rate limiter and an
// external payment service must see every request.
func Chain(log *slog.Logger, hooks ...Hook) Hook {
	return &chainHook{hooks: hooks, log: log}
}

func (c *chainHook) Authorize(ctx context.Context, meta Meta) error {
	for _, h := range c.hooks {
		if err := h.Authorize(ctx, meta); err != nil {
			return err
		}
	}
	return nil
}

func (c *chainHook) Record(ctx context.Context, meta Meta, cost *pricing.Cost) {
	for _, h := range c.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil && c.log != nil {
					c.log.Error("billing hook panicked", slog.Any("panic", r), slog.String("request_id", meta.RequestID))
				}
			}()
			h.Record(ctx, meta, cost)
		}()
	}
}

// AsAPIError narrows err to *apierrors.Error, wrapping it as an internal
// error if a Hook implementation returned a plain error instead of the
// taxonomy type Authorize's contract requires.
func AsAPIError(requestID string, err error) *apierrors.Error {
	if e, ok := apierrors.As(err); ok {
		return e
	}
	return apierrors.Internal(requestID, err)
}
