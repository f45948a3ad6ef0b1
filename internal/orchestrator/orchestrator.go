// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/nuwa-protocol/llm-gateway/internal/apierrors"
	"github.com/nuwa-protocol/llm-gateway/internal/auth"
	"github.com/nuwa-protocol/llm-gateway/internal/billing"
	"github.com/nuwa-protocol/llm-gateway/internal/metrics"
	"github.com/nuwa-protocol/llm-gateway/internal/pricing"
	"github.com/nuwa-protocol/llm-gateway/internal/provider"
	"github.com/nuwa-protocol/llm-gateway/internal/router"
	"github.com/nuwa-protocol/llm-gateway/internal/stream"
)

const (
	defaultNonStreamTimeout = 30 * time.Second
	defaultStreamIdleTimeout = 60 * time.Second
	defaultMaxBodyBytes      = 1 << 20 // 1 MiB
)

// Orchestrator wires the Auth Gate, Router, Pricing Registry, Provider
// Adapters, and billing Hook into the single end-to-end pipeline that
// handles one inbound LLM request.
type Orchestrator struct {
	AuthGate *auth.Gate
	Router   *router.Router
	Pricing  *pricing.Registry
	Billing  billing.Hook
	Client   *http.Client
	Log      *slog.Logger

	MaxBodyBytes      int64
	NonStreamTimeout  time.Duration
	StreamIdleTimeout time.Duration

	// NewRequestMetrics, if set, is called once per inbound request to
	// obtain a fresh ChatCompletionMetrics recorder (its internal timing
	// state is not safe to share across concurrent requests). Nil
	// disables GenAI metrics recording entirely.
	NewRequestMetrics func() metrics.ChatCompletionMetrics
}

// New builds an Orchestrator with spec-default resource limits; callers
// may override the exported fields before first use.
func New(gate *auth.Gate, r *router.Router, pricingReg *pricing.Registry, hook billing.Hook, client *http.Client, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		AuthGate:          gate,
		Router:            r,
		Pricing:           pricingReg,
		Billing:           hook,
		Client:            client,
		Log:               log,
		MaxBodyBytes:      defaultMaxBodyBytes,
		NonStreamTimeout:  defaultNonStreamTimeout,
		StreamIdleTimeout: defaultStreamIdleTimeout,
	}
}

// HandleLLMRequest runs the pipeline end to end for one inbound
// HTTP request and writes the final response (or a JSON error body)
// to w.
func (o *Orchestrator) HandleLLMRequest(w http.ResponseWriter, r *http.Request) {
	meta := Meta{
		RequestID:      uuid.NewString(),
		Method:         r.Method,
		Path:           r.URL.Path,
		StartMonotonic: time.Now(),
	}
	stats := NewStats()

	// Step 1: Auth Gate.
	stopAuth := stageTimer(stats, "auth")
	callerDID, apiErr := o.AuthGate.Authenticate(r)
	stopAuth()
	if apiErr != nil {
		o.writeError(w, apiErr)
		return
	}
	meta.CallerDID = callerDID

	// Steps 2-3: Router + Path Validator.
	stopRoute := stageTimer(stats, "route")
	resolved, err := o.Router.Route(r.URL.Path)
	stopRoute()
	if err != nil {
		o.writeError(w, apierrors.NotFound("route_not_found", err.Error()))
		return
	}
	meta.TargetProvider = resolved.Provider.Name
	meta.TargetPath = resolved.UpstreamPath

	// Step 4: read the whole body (readBody buffers every upload in full,
	// streamed or not) and peek its model field.
	body, apiErr := o.readBody(w, r)
	if apiErr != nil {
		o.writeError(w, apiErr)
		return
	}
	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		o.writeError(w, apierrors.ModelNotSupported("Model not specified"))
		return
	}
	stats.SelectedModel = model
	meta.IsStreaming = gjson.GetBytes(body, "stream").Bool()

	// Step 5: pricing gate.
	if !o.Pricing.IsModelSupported(resolved.Provider.Name, model, resolved.Provider.Adapter.SupportsNativeUsdCost()) {
		o.writeError(w, apierrors.ModelNotSupported(fmt.Sprintf("model %q is not supported for provider %q", model, resolved.Provider.Name)))
		return
	}

	billingMeta := billing.Meta{
		RequestID: meta.RequestID,
		CallerDID: meta.CallerDID,
		Provider:  meta.TargetProvider,
		Model:     model,
		Streaming: meta.IsStreaming,
	}
	if err := o.Billing.Authorize(r.Context(), billingMeta); err != nil {
		o.writeError(w, billing.AsAPIError(meta.RequestID, err))
		return
	}

	targetURL := resolved.Provider.BaseURL + resolved.UpstreamPath
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	var reqMetrics metrics.ChatCompletionMetrics
	if o.NewRequestMetrics != nil {
		reqMetrics = o.NewRequestMetrics()
		reqMetrics.StartRequest(nil)
		reqMetrics.SetModel(model)
		reqMetrics.SetBackend(resolved.Provider.Name)
	}

	stopUpstream := stageTimer(stats, "upstream")
	var upstreamOK bool
	if meta.IsStreaming {
		upstreamOK = o.handleStreaming(w, r, resolved.Provider, targetURL, body, meta, stats, reqMetrics)
	} else {
		upstreamOK = o.handleNonStreaming(w, r, resolved.Provider, targetURL, body, meta, stats)
	}
	stopUpstream()

	if reqMetrics != nil {
		if stats.Usage != nil {
			reqMetrics.RecordTokenUsage(r.Context(), uint32(stats.Usage.PromptTokens), uint32(stats.Usage.CompletionTokens), uint32(stats.Usage.TotalTokens))
		}
		reqMetrics.RecordRequestCompletion(r.Context(), upstreamOK)
	}

	stopFinalize := stageTimer(stats, "finalize")
	o.Billing.Record(r.Context(), billingMeta, stats.Cost)
	stopFinalize()
}

// readBody enforces the message size cap and returns the full
// body; the caller only needs a JSON peek at "model"/"stream", but since
// forwarding requires the whole body anyway for non-streaming requests,
// buffering once here (rather than re-reading for the peek) keeps a
// single code path for both.
func (o *Orchestrator) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *apierrors.Error) {
	limit := o.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	limited := http.MaxBytesReader(w, r.Body, limit)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, apierrors.MessageTooLarge(int(limit))
	}
	return body, nil
}

func (o *Orchestrator) handleNonStreaming(w http.ResponseWriter, r *http.Request, rec *provider.Record, targetURL string, body []byte, meta Meta, stats *Stats) bool {
	ctx, cancel := context.WithTimeout(r.Context(), o.NonStreamTimeout)
	defer cancel()

	resp, _, err := provider.ExecuteRequest(ctx, rec.Adapter, o.Client, r.Method, targetURL, body, rec.APIKey)
	if err != nil {
		o.writeError(w, upstreamError(ctx, err))
		return false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		o.writeError(w, apierrors.UpstreamPreByte(err))
		return false
	}

	parsed, err := rec.Adapter.ParseResponse(resp, respBody)
	if err == nil {
		stats.Usage = parsed.Usage
		if parsed.ResponseModel != "" {
			stats.SelectedModel = parsed.ResponseModel
		}
		stats.Cost = o.computeCost(rec, stats.SelectedModel, parsed)
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
	return resp.StatusCode < http.StatusBadRequest
}

func (o *Orchestrator) handleStreaming(w http.ResponseWriter, r *http.Request, rec *provider.Record, targetURL string, body []byte, meta Meta, stats *Stats, reqMetrics metrics.ChatCompletionMetrics) bool {
	resp, err := provider.ExecuteStreamRequest(r.Context(), rec.Adapter, o.Client, r.Method, targetURL, body, rec.APIKey)
	if err != nil {
		o.writeError(w, upstreamError(r.Context(), err))
		return false
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(resp.StatusCode)
	flusher, _ := w.(http.Flusher)

	dst := &flushingWriter{w: w, f: flusher}
	providerName := rec.Name
	ok := resp.StatusCode < http.StatusBadRequest
	tr := stream.New(dst, resp.Body, rec.Adapter.UsageExtractor(), o.Log, func(res stream.Result) {
		stats.Usage = res.Usage
		if res.Usage != nil {
			stats.Cost = o.Pricing.Calculate(providerName, stats.SelectedModel, res.Usage)
			if reqMetrics != nil {
				reqMetrics.RecordTokenLatency(r.Context(), uint32(res.Usage.TotalTokens))
			}
		}
		if res.UpstreamErr != nil {
			ok = false
			writeSSEError(dst, res.UpstreamErr)
		}
	})
	_ = tr.Run(r.Context())
	return ok
}

func (o *Orchestrator) computeCost(rec *provider.Record, model string, parsed provider.ParsedResponse) *pricing.Cost {
	if parsed.NativeCostUSD != nil {
		costUSD, err := decimal.NewFromString(*parsed.NativeCostUSD)
		if err == nil {
			return &pricing.Cost{CostUSD: costUSD, Source: pricing.SourceProvider, Model: model, Usage: parsed.Usage}
		}
		if o.Log != nil {
			o.Log.Warn("ignoring unparseable native cost header", slog.String("value", *parsed.NativeCostUSD))
		}
	}
	if parsed.Usage == nil {
		return nil
	}
	return o.Pricing.Calculate(rec.Name, model, parsed.Usage)
}

func (o *Orchestrator) writeError(w http.ResponseWriter, e *apierrors.Error) {
	if o.Log != nil && e.Kind == apierrors.KindInternal {
		o.Log.Error("internal error", slog.String("code", e.Code), slog.Any("err", e.Err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.ToJSON())
}

func upstreamError(ctx context.Context, err error) *apierrors.Error {
	if ctx.Err() == context.DeadlineExceeded {
		return apierrors.UpstreamTimeout()
	}
	return apierrors.UpstreamPreByte(err)
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// flushingWriter flushes after every write when the underlying
// ResponseWriter supports it, so SSE frames reach the client as they
// are produced instead of waiting for Go's default buffering.
type flushingWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw *flushingWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// writeSSEError injects a single "event: error" frame for gateway-side
// errors mid-stream, then lets the caller close the transport.
func writeSSEError(w io.Writer, upstreamErr error) {
	payload, _ := json.Marshal(apierrors.UpstreamPreByte(upstreamErr).ToJSON())
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
}
