// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// baseMetrics provides shared functionality for gateway metrics implementations.
type baseMetrics struct {
	metrics      *genAI
	operation    string
	requestStart time.Time
	model        string
	backend      string
}

// newBaseMetrics creates a new baseMetrics instance with the specified operation.
func newBaseMetrics(meter metric.Meter, operation string) baseMetrics {
	return baseMetrics{
		metrics:   newGenAI(meter),
		operation: operation,
		model:     "unknown",
		backend:   "unknown",
	}
}

// StartRequest initializes timing for a new request.
func (b *baseMetrics) StartRequest(_ map[string]string) {
	b.requestStart = time.Now()
}

// SetModel sets the model for the request.
func (b *baseMetrics) SetModel(model string) {
	b.model = model
}

// SetBackend sets the name of the backend to be reported in the metrics according to:
// https://opentelemetry.io/docs/specs/semconv/attributes-registry/gen-ai/#gen-ai-system
//
// providerName is the configured provider.Record.Name (e.g. "openai",
// "anthropic"); known names are mapped onto the GenAI semantic-convention
// system values, anything else is reported verbatim.
func (b *baseMetrics) SetBackend(providerName string) {
	switch providerName {
	case "openai":
		b.backend = genaiSystemOpenAI
	case "bedrock", "aws-bedrock":
		b.backend = genAISystemAWSBedrock
	default:
		b.backend = providerName
	}
}

// buildBaseAttributes creates the base attributes for metrics recording.
func (b *baseMetrics) buildBaseAttributes(extraAttrs ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3+len(extraAttrs))
	attrs = append(attrs,
		attribute.Key(genaiAttributeOperationName).String(b.operation),
		attribute.Key(genaiAttributeSystemName).String(b.backend),
		attribute.Key(genaiAttributeRequestModel).String(b.model),
	)
	attrs = append(attrs, extraAttrs...)
	return attrs
}

// RecordRequestCompletion records the completion of a request with success/failure status.
func (b *baseMetrics) RecordRequestCompletion(ctx context.Context, success bool, extraAttrs ...attribute.KeyValue) {
	attrs := b.buildBaseAttributes(extraAttrs...)

	if success {
		// According to the semantic conventions, the error attribute should not be added for successful operations
		b.metrics.requestLatency.Record(ctx, time.Since(b.requestStart).Seconds(), metric.WithAttributes(attrs...))
	} else {
		// We don't have a set of typed errors yet, or a set of low-cardinality values, so we can just set the value to the
		// placeholder one. See: https://opentelemetry.io/docs/specs/semconv/attributes-registry/error/#error-type
		b.metrics.requestLatency.Record(ctx, time.Since(b.requestStart).Seconds(),
			metric.WithAttributes(attrs...),
			metric.WithAttributes(attribute.Key(genaiAttributeErrorType).String(genaiErrorTypeFallback)),
		)
	}
}
