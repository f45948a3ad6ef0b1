// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewChatCompletion(t *testing.T) {
	t.Parallel()
	var (
		mr    = metric.NewManualReader()
		meter = metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
		pm    = NewChatCompletion(meter).(*chatCompletion)
	)

	assert.NotNil(t, pm)
	assert.False(t, pm.firstTokenSent)
}

func TestChatCompletionStartRequest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()
		var (
			mr    = metric.NewManualReader()
			meter = metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
			pm    = NewChatCompletion(meter).(*chatCompletion)
		)

		before := time.Now()
		pm.StartRequest(nil)
		after := time.Now()

		assert.False(t, pm.firstTokenSent)
		assert.Equal(t, before, pm.requestStart)
		assert.Equal(t, after, pm.requestStart)
	})
}

func TestChatCompletionRecordTokenUsage(t *testing.T) {
	t.Parallel()
	var (
		mr    = metric.NewManualReader()
		meter = metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
		pm    = NewChatCompletion(meter).(*chatCompletion)

		attrs = []attribute.KeyValue{
			attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
			attribute.Key(genaiAttributeSystemName).String(genaiSystemOpenAI),
			attribute.Key(genaiAttributeRequestModel).String("test-model"),
		}
		inputAttrs  = attribute.NewSet(append(attrs, attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeInput))...)
		outputAttrs = attribute.NewSet(append(attrs, attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeOutput))...)
		totalAttrs  = attribute.NewSet(append(attrs, attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeTotal))...)
	)

	pm.SetModel("test-model")
	pm.SetBackend("openai")
	pm.RecordTokenUsage(t.Context(), 10, 5, 15)

	count, sum := getHistogramValues(t, mr, genaiMetricClientTokenUsage, inputAttrs)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 10.0, sum)

	count, sum = getHistogramValues(t, mr, genaiMetricClientTokenUsage, outputAttrs)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 5.0, sum)

	count, sum = getHistogramValues(t, mr, genaiMetricClientTokenUsage, totalAttrs)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 15.0, sum)
}

func TestChatCompletionRecordRequestCompletion(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()
		var (
			mr    = metric.NewManualReader()
			meter = metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
			pm    = NewChatCompletion(meter).(*chatCompletion)
			attrs = []attribute.KeyValue{
				attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
				attribute.Key(genaiAttributeSystemName).String("custom"),
				attribute.Key(genaiAttributeRequestModel).String("test-model"),
			}
			attrsSuccess = attribute.NewSet(attrs...)
			attrsFailure = attribute.NewSet(append(attrs, attribute.Key(genaiAttributeErrorType).String(genaiErrorTypeFallback))...)
		)

		pm.StartRequest(nil)
		pm.SetModel("test-model")
		pm.SetBackend("custom")

		time.Sleep(10 * time.Millisecond)
		pm.RecordRequestCompletion(t.Context(), true)
		count, sum := getHistogramValues(t, mr, genaiMetricServerRequestDuration, attrsSuccess)
		assert.Equal(t, uint64(1), count)
		assert.Equal(t, (10 * time.Millisecond).Seconds(), sum)

		pm.RecordRequestCompletion(t.Context(), false)
		pm.RecordRequestCompletion(t.Context(), false)
		count, sum = getHistogramValues(t, mr, genaiMetricServerRequestDuration, attrsFailure)
		assert.Equal(t, uint64(2), count)
		assert.Equal(t, 2*(10*time.Millisecond).Seconds(), sum)
	})
}

func TestChatCompletionSetBackendKnownProviders(t *testing.T) {
	t.Parallel()
	mr := metric.NewManualReader()
	meter := metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
	pm := NewChatCompletion(meter).(*chatCompletion)

	pm.SetBackend("openai")
	assert.Equal(t, genaiSystemOpenAI, pm.backend)

	pm.SetBackend("bedrock")
	assert.Equal(t, genAISystemAWSBedrock, pm.backend)

	pm.SetBackend("anthropic")
	assert.Equal(t, "anthropic", pm.backend)
}

func TestChatCompletionRecordTokenLatency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		t.Helper()
		var (
			mr    = metric.NewManualReader()
			meter = metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
			pm    = NewChatCompletion(meter).(*chatCompletion)
			attrs = attribute.NewSet(
				attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
				attribute.Key(genaiAttributeSystemName).String(genAISystemAWSBedrock),
				attribute.Key(genaiAttributeRequestModel).String("test-model"),
			)
		)

		pm.StartRequest(nil)
		pm.SetModel("test-model")
		pm.SetBackend("bedrock")

		time.Sleep(10 * time.Millisecond)
		pm.RecordTokenLatency(t.Context(), 0)
		assert.True(t, pm.firstTokenSent)
		count, sum := getHistogramValues(t, mr, genaiMetricServerTimeToFirstToken, attrs)
		assert.Equal(t, uint64(1), count)
		assert.Equal(t, (10 * time.Millisecond).Seconds(), sum)

		time.Sleep(10 * time.Millisecond)
		pm.RecordTokenLatency(t.Context(), 4)
		count, sum = getHistogramValues(t, mr, genaiMetricServerTimePerOutputToken, attrs)
		assert.Equal(t, uint64(1), count)
		assert.Equal(t, (10*time.Millisecond).Seconds()/4, sum)
	})
}

// getHistogramValues returns the count and sum of a histogram metric with the given attributes.
func getHistogramValues(t *testing.T, reader metric.Reader, metricName string, attrs attribute.Set) (uint64, float64) {
	t.Helper()
	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &data))

	var datapoints []metricdata.HistogramDataPoint[float64]
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricName {
				continue
			}
			hist := m.Data.(metricdata.Histogram[float64])
			for _, dp := range hist.DataPoints {
				if dp.Attributes.Equals(&attrs) {
					datapoints = append(datapoints, dp)
				}
			}
		}
	}

	require.Len(t, datapoints, 1, "found %d datapoints for attributes: %v", len(datapoints), attrs)

	return datapoints[0].Count, datapoints[0].Sum
}

// getCounterValue returns the value of a counter metric with the given attributes.
func getCounterValue(t *testing.T, reader metric.Reader, metricName string, attrs attribute.Set) float64 {
	t.Helper()
	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &data))

	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricName {
				continue
			}
			sum := m.Data.(metricdata.Sum[float64])
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&attrs) {
					return dp.Value
				}
			}
		}
	}
	require.Fail(t, "no datapoint found", "metric %q attributes %v", metricName, attrs)
	return 0
}
