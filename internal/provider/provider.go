// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider models the upstream LLM providers the gateway fronts
// and the per-provider request/response adapters that translate between
// the gateway's wire shape and each upstream's conventions.
package provider

import (
	"context"
	"net/http"
	"regexp"

	"github.com/nuwa-protocol/llm-gateway/internal/usage"
)

// AuthKind labels the credential scheme recorded on a provider Record.
// InjectAuth does not consult it: each Adapter attaches credentials in
// its own fixed way.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthHeader AuthKind = "header"
	AuthBasic  AuthKind = "basic"
)

// AllowedPath is one entry in a Provider's allowed-paths set: either a
// literal path or a compiled regex, matched by the Path Validator.
type AllowedPath struct {
	Literal string
	Regex   *regexp.Regexp
}

// Matches reports whether upstreamPath (already stripped of the leading
// "/{providerName}" segment) is permitted for this provider.
func (p AllowedPath) Matches(upstreamPath string) bool {
	if p.Regex != nil {
		return p.Regex.MatchString(upstreamPath)
	}
	return p.Literal == upstreamPath
}

// ParsedResponse is the normalized result of Adapter.ParseResponse: the
// fields the orchestrator needs regardless of which upstream produced
// them.
type ParsedResponse struct {
	Usage *usage.Usage
	// NativeCostUSD is set when the upstream reports its own USD cost
	// (e.g. LiteLLM's x-litellm-response-cost header); when non-nil it
	// takes precedence over PricingRegistry-computed cost.
	NativeCostUSD *string
	ResponseModel string
}

// Adapter is the contract every upstream provider implements; it holds
// no per-request state itself.
type Adapter interface {
	// Name is the provider key used in route URLs and pricing tables.
	Name() string

	// SupportsNativeUsdCost reports whether this provider's responses
	// carry their own authoritative USD cost, bypassing PricingRegistry.
	SupportsNativeUsdCost() bool

	// SupportedPaths returns the allowed-paths set consulted by the
	// Path Validator.
	SupportedPaths() []AllowedPath

	// PrepareRequest rewrites an incoming request body for forwarding,
	// e.g. injecting stream_options.include_usage for streaming chat
	// completions while leaving Response-API bodies alone.
	PrepareRequest(body []byte, isStreaming bool) ([]byte, error)

	// InjectAuth attaches provider credentials to an outgoing request.
	InjectAuth(req *http.Request, apiKey string)

	// ParseResponse extracts usage and any native cost signal from a
	// complete (non-streaming) upstream response.
	ParseResponse(resp *http.Response, body []byte) (ParsedResponse, error)

	// UsageExtractor returns the streaming usage extractor for this
	// provider's wire format, or nil if none is known.
	UsageExtractor() usage.Extractor

	// TestModels returns a short list of model ids usable for
	// diagnostics; not used on the request path.
	TestModels() []string
}

// ExecuteRequest bundles PrepareRequest + InjectAuth + forwarding for a
// non-streaming call, so tests and the Orchestrator share one path.
func ExecuteRequest(ctx context.Context, a Adapter, client *http.Client, method, url string, body []byte, apiKey string) (*http.Response, []byte, error) {
	prepared, err := a.PrepareRequest(body, false)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, newBodyReader(prepared))
	if err != nil {
		return nil, nil, err
	}
	a.InjectAuth(req, apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	return resp, prepared, nil
}

// ExecuteStreamRequest mirrors ExecuteRequest for the streaming path:
// PrepareRequest is called with isStreaming=true and the caller is
// responsible for handing resp.Body to a stream.Transformer.
func ExecuteStreamRequest(ctx context.Context, a Adapter, client *http.Client, method, url string, body []byte, apiKey string) (*http.Response, error) {
	prepared, err := a.PrepareRequest(body, true)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, newBodyReader(prepared))
	if err != nil {
		return nil, err
	}
	a.InjectAuth(req, apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return client.Do(req)
}
