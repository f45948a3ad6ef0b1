// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nuwa-protocol/llm-gateway/internal/auth"
	"github.com/nuwa-protocol/llm-gateway/internal/billing"
	"github.com/nuwa-protocol/llm-gateway/internal/pricing"
	"github.com/nuwa-protocol/llm-gateway/internal/provider"
	"github.com/nuwa-protocol/llm-gateway/internal/router"
)

type allowAllVerifier struct{}

func (allowAllVerifier) Verify(context.Context, string) (string, error) { return "did:example:caller", nil }

func newTestOrchestrator(t *testing.T, upstreamURL string) *Orchestrator {
	t.Helper()

	reg := provider.NewRegistry()
	reg.Register(&provider.Record{
		Name:         "openai",
		BaseURL:      upstreamURL,
		Adapter:      provider.NewOpenAI(),
		AllowedPaths: provider.NewOpenAI().SupportedPaths(),
	})

	priceReg, err := pricing.NewRegistry(decimal.NewFromInt(1))
	require.NoError(t, err)
	require.NoError(t, priceReg.Load("openai", &pricing.Table{
		Version: "v1",
		Models: map[string]pricing.UnitPrice{
			"gpt-4o-mini": {PromptPricePerMegaToken: decimal.NewFromInt(1), CompletionPricePerMegaToken: decimal.NewFromInt(2)},
		},
	}))

	gate := auth.New(allowAllVerifier{}, nil)
	r := router.New(reg)
	hook := billing.NewLoggingHook(slog.New(slog.NewTextHandler(io.Discard, nil)))

	return New(gate, r, priceReg, hook, http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleLLMRequestNonStreamingSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","model":"gpt-4o-mini","usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer upstream.Close()

	o := newTestOrchestrator(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(`{"model":"gpt-4o-mini","messages":[]}`))
	req.Header.Set("Authorization", "DIDAuthV1 sometoken")
	rec := httptest.NewRecorder()

	o.HandleLLMRequest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "chatcmpl-1")
}

func TestHandleLLMRequestMissingAuth(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(`{"model":"gpt-4o-mini"}`))
	rec := httptest.NewRecorder()

	o.HandleLLMRequest(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLLMRequestUnknownProvider(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodPost, "/nope/v1/chat/completions", strings.NewReader(`{"model":"x"}`))
	req.Header.Set("Authorization", "DIDAuthV1 sometoken")
	rec := httptest.NewRecorder()

	o.HandleLLMRequest(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLLMRequestMissingModel(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(`{"messages":[]}`))
	req.Header.Set("Authorization", "DIDAuthV1 sometoken")
	rec := httptest.NewRecorder()

	o.HandleLLMRequest(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLLMRequestUnsupportedModel(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodPost, "/openai/v1/chat/completions", strings.NewReader(`{"model":"unknown-model","messages":[]}`))
	req.Header.Set("Authorization", "DIDAuthV1 sometoken")
	rec := httptest.NewRecorder()

	o.HandleLLMRequest(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
