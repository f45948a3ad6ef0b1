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

// sjsonOptions mirrors the grounding translator's choice: optimistic
// in-place-capable writes, but never ReplaceInPlace, since PrepareRequest
// must not mutate the caller's original byte slice (it may be retried or
// inspected again after this call returns).
var sjsonOptions = &sjson.Options{Optimistic: true, ReplaceInPlace: false}

type openAIAdapter struct {
	paths []AllowedPath
}

// NewOpenAI returns the Adapter for the OpenAI API.
func NewOpenAI() Adapter {
	return openAIAdapter{paths: []AllowedPath{
		{Literal: "/v1/chat/completions"},
		{Literal: "/v1/completions"},
		{Literal: "/v1/responses"},
		{Literal: "/v1/embeddings"},
		{Regex: regexp.MustCompile(`^/v1/models(/.*)?$`)},
	}}
}

func (openAIAdapter) Name() string                   { return "openai" }
func (openAIAdapter) SupportsNativeUsdCost() bool     { return false }
func (a openAIAdapter) SupportedPaths() []AllowedPath { return a.paths }
func (openAIAdapter) UsageExtractor() usage.Extractor { return usage.OpenAI() }
func (openAIAdapter) TestModels() []string            { return []string{"gpt-4o-mini", "gpt-4o"} }

// PrepareRequest injects stream_options.include_usage=true for chat/
// completions-style bodies (detected by the presence of "messages") when
// streaming. The Response API uses a top-level field named "input"
// instead of "messages" and is left untouched, since it does not accept
// stream_options.
func (openAIAdapter) PrepareRequest(body []byte, isStreaming bool) ([]byte, error) {
	if !isStreaming {
		return body, nil
	}
	if gjson.GetBytes(body, "input").Exists() && !gjson.GetBytes(body, "messages").Exists() {
		return body, nil
	}
	return sjson.SetBytesOptions(body, "stream_options.include_usage", true, sjsonOptions)
}

func (openAIAdapter) InjectAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (openAIAdapter) ParseResponse(_ *http.Response, body []byte) (ParsedResponse, error) {
	u, err := usage.OpenAI().FromResponseBody(body)
	if err != nil {
		return ParsedResponse{}, err
	}
	return ParsedResponse{
		Usage:         u,
		ResponseModel: gjson.GetBytes(body, "model").String(),
	}, nil
}
