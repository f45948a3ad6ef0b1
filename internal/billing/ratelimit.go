// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package billing

import (
	"context"
	"sync"
	"time"

	"github.com/nuwa-protocol/llm-gateway/internal/apierrors"
	"github.com/nuwa-protocol/llm-gateway/internal/pricing"
)

// RateLimitHook enforces a simple per-caller token bucket: requestsPerMinute
// tokens, refilled continuously, one consumed per Authorize call. It
// never records cost itself; it is meant to run ahead of a billing
// service's Hook in a Chain.
type RateLimitHook struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     float64
	nowFunc   func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimitHook builds a RateLimitHook allowing requestsPerMinute
// sustained requests per caller DID, with a burst allowance equal to
// requestsPerMinute (i.e. a caller can spend a full minute's quota at
// once after being idle).
func NewRateLimitHook(requestsPerMinute int) *RateLimitHook {
	rate := float64(requestsPerMinute) / 60.0
	return &RateLimitHook{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(requestsPerMinute),
		nowFunc: time.Now,
	}
}

func (h *RateLimitHook) Authorize(_ context.Context, meta Meta) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.nowFunc()
	b, ok := h.buckets[meta.CallerDID]
	if !ok {
		b = &bucket{tokens: h.burst, lastSeen: now}
		h.buckets[meta.CallerDID] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens = min(h.burst, b.tokens+elapsed*h.rate)
	b.lastSeen = now

	if b.tokens < 1 {
		return apierrors.RateLimited("per-caller request rate exceeded")
	}
	b.tokens--
	return nil
}

func (h *RateLimitHook) Record(context.Context, Meta, *pricing.Cost) {}
