// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIPrepareRequestInjectsStreamOptionsForChat(t *testing.T) {
	a := NewOpenAI()
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`)

	out, err := a.PrepareRequest(body, true)
	require.NoError(t, err)
	require.Contains(t, string(out), `"include_usage":true`)
	require.NotContains(t, string(body), "include_usage", "original body must not be mutated")
}

func TestOpenAIPrepareRequestSkipsResponseAPI(t *testing.T) {
	a := NewOpenAI()
	body := []byte(`{"model":"gpt-4o","input":"hi","stream":true}`)

	out, err := a.PrepareRequest(body, true)
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestOpenAIPrepareRequestNoopWhenNotStreaming(t *testing.T) {
	a := NewOpenAI()
	body := []byte(`{"model":"gpt-4o","messages":[]}`)
	out, err := a.PrepareRequest(body, false)
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestAnthropicInjectAuthSetsHeaders(t *testing.T) {
	a := NewAnthropic()
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	a.InjectAuth(req, "sk-test")

	require.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	require.Equal(t, defaultAnthropicVersion, req.Header.Get("anthropic-version"))
	require.Empty(t, req.Header.Get("Authorization"))
}

func TestGoogleInjectAuthUsesQueryParameter(t *testing.T) {
	a := NewGoogle()
	req := httptest.NewRequest(http.MethodPost, "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent", nil)
	a.InjectAuth(req, "goog-key")

	require.Equal(t, "goog-key", req.URL.Query().Get("key"))
	require.Empty(t, req.Header.Get("Authorization"))
}

func TestLiteLLMParseResponsePrefersNativeCost(t *testing.T) {
	a := NewLiteLLM()
	resp := &http.Response{Header: http.Header{liteLLMCostHeader: []string{"0.00042"}}}
	body := []byte(`{"model":"gpt-4o-mini","usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)

	parsed, err := a.ParseResponse(resp, body)
	require.NoError(t, err)
	require.NotNil(t, parsed.NativeCostUSD)
	require.Equal(t, "0.00042", *parsed.NativeCostUSD)
	require.EqualValues(t, 15, parsed.Usage.TotalTokens)
}

func TestAllowedPathMatching(t *testing.T) {
	for _, a := range []Adapter{NewOpenAI(), NewAnthropic(), NewGoogle(), NewOpenRouter(), NewLiteLLM()} {
		require.NotEmpty(t, a.SupportedPaths(), a.Name())
	}
}

func TestRegistryLookupAndUnregister(t *testing.T) {
	reg := NewRegistry()
	rec := &Record{Name: "openai", Adapter: NewOpenAI(), AllowedPaths: NewOpenAI().SupportedPaths()}
	reg.Register(rec)

	got, ok := reg.Lookup("openai")
	require.True(t, ok)
	require.Same(t, rec, got)

	require.NoError(t, got.ValidatePath("/v1/chat/completions"))
	require.Error(t, got.ValidatePath("/v1/unknown"))

	reg.Unregister("openai")
	_, ok = reg.Lookup("openai")
	require.False(t, ok)
}
