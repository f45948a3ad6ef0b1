// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package router resolves incoming LLM requests to a configured
// Provider and validates the upstream path, and separately
// matches MCP JSON-RPC calls to a route rule.
package router

import (
	"fmt"
	"strings"

	"github.com/nuwa-protocol/llm-gateway/internal/provider"
)

// Resolved is the outcome of routing one LLM request.
type Resolved struct {
	Provider     *provider.Record
	UpstreamPath string
}

// Router splits "/{providerName}/{upstreamPath...}" and looks up the
// named provider.
type Router struct {
	providers *provider.Registry

	// LegacyOpenRouterAlias, when true, routes "/api/v1/*" to the
	// "openrouter" provider unconditionally, for deployments migrating
	// off an older client base that hardcoded that prefix. Disabled by
	// default.
	LegacyOpenRouterAlias bool
}

// New builds a Router backed by providers, with the legacy
// "/api/v1/*" -> openrouter alias disabled by default.
func New(providers *provider.Registry) *Router {
	return &Router{providers: providers}
}

const legacyOpenRouterPrefix = "/api/v1/"

// legacyAliasTarget rewrites fullPath into the openrouter-aliased
// provider/upstream-path split when the legacy alias is enabled and
// fullPath matches the legacy prefix.
func (r *Router) legacyAliasTarget(fullPath string) (providerName, upstreamPath string, ok bool) {
	if !r.LegacyOpenRouterAlias || !strings.HasPrefix(fullPath, legacyOpenRouterPrefix) {
		return "", "", false
	}
	return "openrouter", fullPath[len(legacyOpenRouterPrefix)-1:], true
}

// ErrUnknownProvider and ErrPathNotAllowed are returned by Route; the
// caller (orchestrator) maps both to a 404.
type ErrUnknownProvider struct{ Name string }

func (e *ErrUnknownProvider) Error() string { return fmt.Sprintf("unknown provider %q", e.Name) }

type ErrPathNotAllowed struct {
	Provider string
	Path     string
}

func (e *ErrPathNotAllowed) Error() string {
	return fmt.Sprintf("path %q is not allowed for provider %q", e.Path, e.Provider)
}

// Route extracts the leading "/{providerName}" segment from fullPath,
// looks up the provider, and validates the remaining "/{upstreamPath}"
// against its allowed-paths set.
func (r *Router) Route(fullPath string) (Resolved, error) {
	providerName, upstreamPath, ok := r.legacyAliasTarget(fullPath)
	if !ok {
		providerName, upstreamPath = splitProviderPath(fullPath)
	}
	rec, ok := r.providers.Lookup(providerName)
	if !ok {
		return Resolved{}, &ErrUnknownProvider{Name: providerName}
	}
	if err := rec.ValidatePath(upstreamPath); err != nil {
		return Resolved{}, &ErrPathNotAllowed{Provider: providerName, Path: upstreamPath}
	}
	return Resolved{Provider: rec, UpstreamPath: upstreamPath}, nil
}

// splitProviderPath splits "/{providerName}/{upstreamPath...}" into its
// two parts; upstreamPath always retains its leading slash so it can be
// compared directly against a provider's AllowedPaths.
func splitProviderPath(fullPath string) (providerName, upstreamPath string) {
	trimmed := strings.TrimPrefix(fullPath, "/")
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, "/"
	}
	return trimmed[:idx], trimmed[idx:]
}
