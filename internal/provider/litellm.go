// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/http"
	"regexp"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

// liteLLMCostHeader is the response header a LiteLLM proxy sets with its
// own authoritative USD cost for the request.
const liteLLMCostHeader = "x-litellm-response-cost"

type liteLLMAdapter struct {
	paths []AllowedPath
}

// NewLiteLLM returns the Adapter for a LiteLLM proxy deployment. Unlike
// the other OpenAI-shaped adapters, LiteLLM reports its own native USD
// cost, so SupportsNativeUsdCost is true and ParseResponse prefers the
// header over PricingRegistry-derived figures.
func NewLiteLLM() Adapter {
	return liteLLMAdapter{paths: []AllowedPath{
		{Literal: "/v1/chat/completions"},
		{Literal: "/v1/completions"},
		{Literal: "/v1/embeddings"},
		{Regex: regexp.MustCompile(`^/v1/models(/.*)?$`)},
	}}
}

func (liteLLMAdapter) Name() string                   { return "litellm" }
func (liteLLMAdapter) SupportsNativeUsdCost() bool     { return true }
func (a liteLLMAdapter) SupportedPaths() []AllowedPath { return a.paths }
func (liteLLMAdapter) UsageExtractor() usage.Extractor { return usage.Generic() }
func (liteLLMAdapter) TestModels() []string            { return []string{"gpt-4o-mini"} }

func (liteLLMAdapter) PrepareRequest(body []byte, isStreaming bool) ([]byte, error) {
	if !isStreaming {
		return body, nil
	}
	return sjson.SetBytesOptions(body, "stream_options.include_usage", true, sjsonOptions)
}

func (liteLLMAdapter) InjectAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (liteLLMAdapter) ParseResponse(resp *http.Response, body []byte) (ParsedResponse, error) {
	u, err := usage.Generic().FromResponseBody(body)
	if err != nil {
		return ParsedResponse{}, err
	}
	parsed := ParsedResponse{
		Usage:         u,
		ResponseModel: gjson.GetBytes(body, "model").String(),
	}
	if cost := resp.Header.Get(liteLLMCostHeader); cost != "" {
		parsed.NativeCostUSD = &cost
	}
	return parsed, nil
}
