// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the Request Orchestrator: the
// end-to-end pipeline that takes an inbound LLM request through auth,
// routing, validation, pricing, forwarding, and billing.
package orchestrator

import (
	"time"

	"github.com/nuwa-protocol/llm-gateway/internal/pricing"
	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

// Meta is the descriptive part of the request context: fields set while
// the request is admitted (arrival, auth, routing, body peek), rather
// than accumulated as the pipeline runs.
type Meta struct {
	RequestID      string
	Method         string
	Path           string
	TargetProvider string
	TargetPath     string
	CallerDID      string
	IsStreaming    bool
	StartMonotonic time.Time
}

// Stats is the mutable, task-owned half of the request context: fields
// that accumulate as the pipeline runs. It is never shared
// across goroutines beyond the single task handling the request.
type Stats struct {
	SelectedModel   string
	Usage           *usage.Usage
	Cost            *pricing.Cost
	ChosenMCPTool   string
	UpstreamLatency time.Duration
	StageTimings    map[string]time.Duration
}

// NewStats returns a zero-value Stats ready for recording stage timings.
func NewStats() *Stats {
	return &Stats{StageTimings: make(map[string]time.Duration, 4)}
}

// RecordStage stores how long a named pipeline stage took (auth, route,
// upstream, finalize).
func (s *Stats) RecordStage(name string, d time.Duration) {
	s.StageTimings[name] = d
}

// stageTimer is a small helper so pipeline steps can defer a single
// recording call instead of hand-computing elapsed time at each step.
func stageTimer(stats *Stats, name string) func() {
	start := time.Now()
	return func() { stats.RecordStage(name, time.Since(start)) }
}
