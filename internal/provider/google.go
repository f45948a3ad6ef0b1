// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"net/http"
	"net/url"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

type googleAdapter struct {
	paths []AllowedPath
}

// NewGoogle returns the Adapter for the Gemini generateContent API.
func NewGoogle() Adapter {
	return googleAdapter{paths: []AllowedPath{
		{Regex: regexp.MustCompile(`^/v1beta/models/[^/]+:(generateContent|streamGenerateContent)$`)},
		{Regex: regexp.MustCompile(`^/v1beta/models(/.*)?$`)},
	}}
}

func (googleAdapter) Name() string                   { return "google" }
func (googleAdapter) SupportsNativeUsdCost() bool     { return false }
func (a googleAdapter) SupportedPaths() []AllowedPath { return a.paths }
func (googleAdapter) UsageExtractor() usage.Extractor { return usage.Google() }
func (googleAdapter) TestModels() []string            { return []string{"gemini-1.5-flash", "gemini-1.5-pro"} }

func (googleAdapter) PrepareRequest(body []byte, _ bool) ([]byte, error) {
	return body, nil
}

// InjectAuth attaches the API key as a query parameter — the only
// provider that does not use a header for credentials.
func (googleAdapter) InjectAuth(req *http.Request, apiKey string) {
	if apiKey == "" {
		return
	}
	q := req.URL.Query()
	q.Set("key", apiKey)
	req.URL.RawQuery = url.Values(q).Encode()
}

func (googleAdapter) ParseResponse(_ *http.Response, body []byte) (ParsedResponse, error) {
	u, err := usage.Google().FromResponseBody(body)
	if err != nil {
		return ParsedResponse{}, err
	}
	return ParsedResponse{
		Usage:         u,
		ResponseModel: gjson.GetBytes(body, "modelVersion").String(),
	}, nil
}
