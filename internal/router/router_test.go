// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nuwa-protocol/llm-gateway/internal/provider"
)

func TestRouteSplitsProviderAndPath(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&provider.Record{Name: "openai", AllowedPaths: provider.NewOpenAI().SupportedPaths()})
	r := New(reg)

	resolved, err := r.Route("/openai/v1/chat/completions")
	require.NoError(t, err)
	require.Equal(t, "openai", resolved.Provider.Name)
	require.Equal(t, "/v1/chat/completions", resolved.UpstreamPath)
}

func TestRouteUnknownProvider(t *testing.T) {
	r := New(provider.NewRegistry())
	_, err := r.Route("/nope/v1/chat/completions")
	require.Error(t, err)
	var e *ErrUnknownProvider
	require.ErrorAs(t, err, &e)
}

func TestRouteDisallowedPath(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&provider.Record{Name: "openai", AllowedPaths: provider.NewOpenAI().SupportedPaths()})
	r := New(reg)

	_, err := r.Route("/openai/v1/admin/secrets")
	require.Error(t, err)
	var e *ErrPathNotAllowed
	require.ErrorAs(t, err, &e)
}

func TestRouteLegacyOpenRouterAliasDisabledByDefault(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&provider.Record{Name: "openrouter", AllowedPaths: provider.NewOpenRouter().SupportedPaths()})
	r := New(reg)

	_, err := r.Route("/api/v1/chat/completions")
	require.Error(t, err)
	var e *ErrUnknownProvider
	require.ErrorAs(t, err, &e)
}

func TestRouteLegacyOpenRouterAliasEnabled(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register(&provider.Record{Name: "openrouter", AllowedPaths: provider.NewOpenRouter().SupportedPaths()})
	r := New(reg)
	r.LegacyOpenRouterAlias = true

	resolved, err := r.Route("/api/v1/chat/completions")
	require.NoError(t, err)
	require.Equal(t, "openrouter", resolved.Provider.Name)
	require.Equal(t, "/v1/chat/completions", resolved.UpstreamPath)
}

func TestMCPRouterTieBreakOrder(t *testing.T) {
	rules := []MCPRule{
		{MatchTool: "search", TargetUpstream: "search-upstream"},
		{MatchDidPrefix: "did:example:", TargetUpstream: "example-upstream"},
		{MatchHostname: "mcp.internal", TargetUpstream: "internal-upstream"},
	}
	r := NewMCPRouter(rules, "default-upstream")

	target, ok := r.Resolve(MCPCall{Method: "tools/call", ToolName: "search"})
	require.True(t, ok)
	require.Equal(t, "search-upstream", target)

	target, ok = r.Resolve(MCPCall{Method: "tools/call", ToolName: "other", CallerDid: "did:example:abc"})
	require.True(t, ok)
	require.Equal(t, "example-upstream", target)

	target, ok = r.Resolve(MCPCall{Method: "prompts/get", Hostname: "mcp.internal"})
	require.True(t, ok)
	require.Equal(t, "internal-upstream", target)

	target, ok = r.Resolve(MCPCall{Method: "prompts/get"})
	require.True(t, ok)
	require.Equal(t, "default-upstream", target)
}

func TestMCPRouterNoMatchNoDefault(t *testing.T) {
	r := NewMCPRouter(nil, "")
	_, ok := r.Resolve(MCPCall{Method: "prompts/get"})
	require.False(t, ok)
}
