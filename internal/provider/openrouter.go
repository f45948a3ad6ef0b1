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

type openRouterAdapter struct {
	paths []AllowedPath
}

// NewOpenRouter returns the Adapter for OpenRouter, which proxies
// OpenAI's chat-completions wire format across many backing models.
func NewOpenRouter() Adapter {
	return openRouterAdapter{paths: []AllowedPath{
		{Literal: "/v1/chat/completions"},
		{Literal: "/v1/completions"},
		{Regex: regexp.MustCompile(`^/v1/models(/.*)?$`)},
	}}
}

func (openRouterAdapter) Name() string                   { return "openrouter" }
func (openRouterAdapter) SupportsNativeUsdCost() bool     { return false }
func (a openRouterAdapter) SupportedPaths() []AllowedPath { return a.paths }
func (openRouterAdapter) UsageExtractor() usage.Extractor { return usage.Generic() }
func (openRouterAdapter) TestModels() []string {
	return []string{"openrouter/auto", "meta-llama/llama-3.1-8b-instruct"}
}

func (openRouterAdapter) PrepareRequest(body []byte, isStreaming bool) ([]byte, error) {
	if !isStreaming {
		return body, nil
	}
	return sjson.SetBytesOptions(body, "stream_options.include_usage", true, sjsonOptions)
}

func (openRouterAdapter) InjectAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (openRouterAdapter) ParseResponse(_ *http.Response, body []byte) (ParsedResponse, error) {
	u, err := usage.Generic().FromResponseBody(body)
	if err != nil {
		return ParsedResponse{}, err
	}
	return ParsedResponse{
		Usage:         u,
		ResponseModel: gjson.GetBytes(body, "model").String(),
	}, nil
}
