// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/nuwa-protocol/llm-gateway/internal/mcpproxy"
	"github.com/nuwa-protocol/llm-gateway/internal/router"
)

// mcpRouteFile is the on-disk YAML shape for MCP route rules and
// upstream definitions, mirroring router.MCPRule field-for-field plus
// the upstream connection details the route rules target by name.
type mcpRouteFile struct {
	DefaultUpstream string              `mapstructure:"defaultUpstream"`
	Rules           []mcpRuleEntry      `mapstructure:"rules"`
	Upstreams       []MCPUpstreamConfig `mapstructure:"upstreams"`
}

type mcpRuleEntry struct {
	MatchTool      string `mapstructure:"matchTool"`
	MatchDidPrefix string `mapstructure:"matchDidPrefix"`
	MatchHostname  string `mapstructure:"matchHostname"`
	TargetUpstream string `mapstructure:"targetUpstream"`
}

// MCPUpstreamConfig is one configured MCP upstream. Kind selects which
// mcpproxy.Upstream implementation to build: "httpstream" (long-lived
// HTTP client), "stdio" (spawned child process), or "docker" (an MCP
// server run inside a container, spoken to over its attached stdio).
type MCPUpstreamConfig struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`

	// httpstream fields.
	BaseURL    string `mapstructure:"baseUrl"`
	AuthHeader string `mapstructure:"authHeader"`
	AuthValue  string `mapstructure:"authValue"`

	// stdio fields.
	Command []string `mapstructure:"command"`
	Cwd     string   `mapstructure:"cwd"`
	Env     []string `mapstructure:"env"`

	// docker fields. Command, when set, overrides the image's entrypoint
	// arguments; Env follows the same KEY=VALUE convention as stdio.
	Image string `mapstructure:"image"`

	// RestartPolicy applies to both stdio and docker upstreams: "never",
	// "on-exit", or "on-crash" (the default when left empty).
	RestartPolicy string `mapstructure:"restartPolicy"`
}

// LoadMCPRoutes reads MCP route rules and upstream definitions from the
// YAML file at path via viper, then lets the MCP_DEFAULT_UPSTREAM
// environment variable overlay the file's default upstream — config
// file layered under env vars, same as the rest of this package. An
// empty path yields no rules and no upstreams, falling back to
// MCP_DEFAULT_UPSTREAM alone.
func LoadMCPRoutes(path string) ([]router.MCPRule, string, []MCPUpstreamConfig, error) {
	envDefault := os.Getenv("MCP_DEFAULT_UPSTREAM")
	if path == "" {
		return nil, envDefault, nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, "", nil, fmt.Errorf("read mcp route config %s: %w", path, err)
	}

	var file mcpRouteFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, "", nil, fmt.Errorf("parse mcp route config %s: %w", path, err)
	}

	rules := make([]router.MCPRule, 0, len(file.Rules))
	for i, r := range file.Rules {
		if r.TargetUpstream == "" {
			return nil, "", nil, fmt.Errorf("mcp route config %s: rule %d missing targetUpstream", path, i)
		}
		rules = append(rules, router.MCPRule{
			MatchTool:      r.MatchTool,
			MatchDidPrefix: r.MatchDidPrefix,
			MatchHostname:  r.MatchHostname,
			TargetUpstream: r.TargetUpstream,
		})
	}

	for i, u := range file.Upstreams {
		if u.Name == "" {
			return nil, "", nil, fmt.Errorf("mcp route config %s: upstream %d missing name", path, i)
		}
		switch u.Kind {
		case "httpstream":
			if u.BaseURL == "" {
				return nil, "", nil, fmt.Errorf("mcp route config %s: upstream %q missing baseUrl", path, u.Name)
			}
		case "stdio":
			if len(u.Command) == 0 {
				return nil, "", nil, fmt.Errorf("mcp route config %s: upstream %q missing command", path, u.Name)
			}
		case "docker":
			if u.Image == "" {
				return nil, "", nil, fmt.Errorf("mcp route config %s: upstream %q missing image", path, u.Name)
			}
		default:
			return nil, "", nil, fmt.Errorf("mcp route config %s: upstream %q has unknown kind %q", path, u.Name, u.Kind)
		}
		if u.Kind == "stdio" || u.Kind == "docker" {
			if file.Upstreams[i].RestartPolicy == "" {
				file.Upstreams[i].RestartPolicy = "on-crash"
			}
			if _, err := mcpproxy.ParseRestartPolicy(file.Upstreams[i].RestartPolicy); err != nil {
				return nil, "", nil, fmt.Errorf("mcp route config %s: upstream %q: %w", path, u.Name, err)
			}
		}
	}

	defaultUpstream := file.DefaultUpstream
	if envDefault != "" {
		defaultUpstream = envDefault
	}

	return rules, defaultUpstream, file.Upstreams, nil
}
