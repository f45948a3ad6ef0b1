// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/http"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

// defaultAnthropicVersion is sent when the incoming request doesn't
// already carry an anthropic-version header, matching the version this
// gateway was built and tested against.
const defaultAnthropicVersion = "2023-06-01"

type anthropicAdapter struct {
	paths []AllowedPath
}

// NewAnthropic returns the Adapter for the Anthropic Messages API.
func NewAnthropic() Adapter {
	return anthropicAdapter{paths: []AllowedPath{
		{Literal: "/v1/messages"},
		{Regex: regexp.MustCompile(`^/v1/models(/.*)?$`)},
	}}
}

func (anthropicAdapter) Name() string                   { return "anthropic" }
func (anthropicAdapter) SupportsNativeUsdCost() bool     { return false }
func (a anthropicAdapter) SupportedPaths() []AllowedPath { return a.paths }
func (anthropicAdapter) UsageExtractor() usage.Extractor { return usage.Anthropic() }
func (anthropicAdapter) TestModels() []string {
	return []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"}
}

// PrepareRequest is a no-op: Anthropic's Messages API always reports
// usage, streaming or not, with no opt-in flag required.
func (anthropicAdapter) PrepareRequest(body []byte, _ bool) ([]byte, error) {
	return body, nil
}

// InjectAuth uses Anthropic's x-api-key scheme plus the required
// anthropic-version header.
func (anthropicAdapter) InjectAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	if req.Header.Get("anthropic-version") == "" {
		req.Header.Set("anthropic-version", defaultAnthropicVersion)
	}
}

func (anthropicAdapter) ParseResponse(_ *http.Response, body []byte) (ParsedResponse, error) {
	u, err := usage.Anthropic().FromResponseBody(body)
	if err != nil {
		return ParsedResponse{}, err
	}
	return ParsedResponse{
		Usage:         u,
		ResponseModel: gjson.GetBytes(body, "model").String(),
	}, nil
}
