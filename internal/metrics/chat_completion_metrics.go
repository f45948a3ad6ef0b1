// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChatCompletionMetrics records GenAI semantic-convention metrics for one
// chat-completion request: token usage, request latency, and (for
// streaming responses) per-token latency.
type ChatCompletionMetrics interface {
	StartRequest(requestHeaders map[string]string)
	SetModel(model string)
	SetBackend(providerName string)
	RecordTokenUsage(ctx context.Context, inputTokens, outputTokens, totalTokens uint32, extraAttrs ...attribute.KeyValue)
	RecordRequestCompletion(ctx context.Context, success bool, extraAttrs ...attribute.KeyValue)
	RecordTokenLatency(ctx context.Context, tokens uint32, extraAttrs ...attribute.KeyValue)
}

// chatCompletion is the default ChatCompletionMetrics implementation. It
// embeds baseMetrics for the request-scoped model/backend/latency state
// shared with other per-operation recorders, adding only the
// first-token/inter-token bookkeeping that chat completions need.
type chatCompletion struct {
	baseMetrics
	firstTokenSent bool
	lastTokenTime  time.Time
}

// NewChatCompletion creates a new ChatCompletionMetrics instance.
func NewChatCompletion(meter metric.Meter) ChatCompletionMetrics {
	return &chatCompletion{baseMetrics: newBaseMetrics(meter, genaiOperationChat)}
}

// StartRequest initializes timing for a new request.
func (c *chatCompletion) StartRequest(headers map[string]string) {
	c.baseMetrics.StartRequest(headers)
	c.firstTokenSent = false
}

// RecordTokenUsage implements [ChatCompletionMetrics.RecordTokenUsage].
func (c *chatCompletion) RecordTokenUsage(ctx context.Context, inputTokens, outputTokens, totalTokens uint32, extraAttrs ...attribute.KeyValue) {
	attrs := c.buildBaseAttributes(extraAttrs...)

	c.metrics.tokenUsage.Record(ctx, float64(inputTokens),
		metric.WithAttributes(attrs...),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeInput)),
	)
	c.metrics.tokenUsage.Record(ctx, float64(outputTokens),
		metric.WithAttributes(attrs...),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeOutput)),
	)
	c.metrics.tokenUsage.Record(ctx, float64(totalTokens),
		metric.WithAttributes(attrs...),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeTotal)),
	)
}

// RecordTokenLatency implements [ChatCompletionMetrics.RecordTokenLatency].
func (c *chatCompletion) RecordTokenLatency(ctx context.Context, tokens uint32, extraAttrs ...attribute.KeyValue) {
	attrs := c.buildBaseAttributes(extraAttrs...)

	if !c.firstTokenSent {
		c.firstTokenSent = true
		c.metrics.firstTokenLatency.Record(ctx, time.Since(c.requestStart).Seconds(), metric.WithAttributes(attrs...))
	} else if tokens > 0 {
		// Calculate time between tokens.
		itl := time.Since(c.lastTokenTime).Seconds() / float64(tokens)
		c.metrics.outputTokenLatency.Record(ctx, itl, metric.WithAttributes(attrs...))
	}
	c.lastTokenTime = time.Now()
}
