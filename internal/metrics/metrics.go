// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewMetricsFromEnv builds a MeterProvider that always exports to promReader
// plus, depending on OTEL_METRICS_EXPORTER and OTEL_SDK_DISABLED, a console
// or OTLP exporter. stdout is where the console exporter (when selected)
// writes; pass os.Stdout in production.
func NewMetricsFromEnv(ctx context.Context, stdout io.Writer, promReader sdkmetric.Reader) (metric.Meter, func(context.Context) error, error) {
	options := []sdkmetric.Option{sdkmetric.WithReader(promReader)}

	if os.Getenv("OTEL_SDK_DISABLED") != "true" {
		exporter := os.Getenv("OTEL_METRICS_EXPORTER")
		hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""

		if exporter == "console" || (exporter != "none" && exporter != "prometheus" && hasOTLPEndpoint) {
			res, err := resourceFor(ctx)
			if err != nil {
				return nil, nil, err
			}
			options = append(options, sdkmetric.WithResource(res))

			if exporter == "console" {
				exp, err := newNonEmptyConsoleExporter(stdout)
				if err != nil {
					return nil, nil, err
				}
				options = append(options, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
			} else {
				// autoexport picks OTLP grpc vs http from OTEL_EXPORTER_OTLP_PROTOCOL and
				// wraps its own PeriodicReader.
				otelReader, err := autoexport.NewMetricReader(ctx)
				if err != nil {
					return nil, nil, err
				}
				options = append(options, sdkmetric.WithReader(otelReader))
			}
		}
	}

	mp := sdkmetric.NewMeterProvider(options...)
	return mp.Meter("llm-gateway"), mp.Shutdown, nil
}

// resourceFor layers the default resource, an llm-gateway service-name
// fallback, and environment-derived attributes, in that precedence order.
func resourceFor(ctx context.Context) (*resource.Resource, error) {
	envRes, err := resource.New(ctx, resource.WithFromEnv(), resource.WithTelemetrySDK())
	if err != nil {
		return nil, err
	}
	fallbackRes := resource.NewSchemaless(semconv.ServiceName("llm-gateway"))
	res, err := resource.Merge(resource.Default(), fallbackRes)
	if err != nil {
		return nil, err
	}
	return resource.Merge(res, envRes)
}
