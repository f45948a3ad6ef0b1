// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config parses the gateway's environment-variable configuration
// into a typed, validated Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ExitCode enumerates the process exit codes configuration assigns to
// startup failures, so main can translate an Error into os.Exit.
type ExitCode int

const (
	ExitOK                ExitCode = 0
	ExitFatalStartup      ExitCode = 1
	ExitInvalidConfig     ExitCode = 2
	ExitMissingCredential ExitCode = 64
)

// KnownProviders lists the provider names the gateway discovers
// credentials for out of the box; additional providers can still be
// registered programmatically.
var KnownProviders = []string{"openai", "anthropic", "google", "openrouter", "litellm"}

// ProviderCredential holds one provider's discovered API key and
// (optional) base URL override.
type ProviderCredential struct {
	APIKey  string
	BaseURL string
}

// Config is the gateway's fully parsed, validated startup configuration.
type Config struct {
	Port    int    `validate:"required,min=1,max=65535"`
	Host    string `validate:"required"`
	Network string `validate:"required,oneof=local dev test main"`
	Debug   bool

	ServiceKey string   `validate:"required"`
	AdminDIDs  []string

	PricingMultiplier decimal.Decimal

	Providers map[string]ProviderCredential

	// LegacyOpenRouterAlias enables the /api/v1/* -> openrouter routing
	// alias some deployments carry over from an older client base,
	// default off.
	LegacyOpenRouterAlias bool

	// MCPRouteConfigPath, when set, points at a YAML file of MCP route
	// rules read via viper; the MCP_DEFAULT_UPSTREAM environment variable
	// overrides the file's default upstream.
	MCPRouteConfigPath string
}

// Error wraps a config-loading failure with the exit code the CLI should
// report on exit.
type Error struct {
	Code ExitCode
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

var validate = validator.New()

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  envInt("PORT", 8080),
		Host:                  envString("HOST", "0.0.0.0"),
		Network:               envString("NETWORK", "local"),
		Debug:                 envBool("DEBUG", false),
		ServiceKey:            os.Getenv("SERVICE_KEY"),
		AdminDIDs:             splitNonEmpty(os.Getenv("ADMIN_DID"), ","),
		LegacyOpenRouterAlias: envBool("LEGACY_OPENROUTER_ALIAS", false),
		MCPRouteConfigPath:    os.Getenv("MCP_ROUTE_CONFIG"),
	}

	multiplier, err := decimal.NewFromString(envString("PRICING_MULTIPLIER", "1"))
	if err != nil {
		return nil, &Error{Code: ExitInvalidConfig, Err: fmt.Errorf("PRICING_MULTIPLIER: %w", err)}
	}
	cfg.PricingMultiplier = multiplier

	providers, missing := discoverProviderCredentials()
	cfg.Providers = providers
	if len(missing) > 0 {
		return nil, &Error{Code: ExitMissingCredential, Err: fmt.Errorf("missing required credential(s): %s", strings.Join(missing, ", "))}
	}
	if len(providers) == 0 {
		return nil, &Error{Code: ExitMissingCredential, Err: fmt.Errorf("no provider credentials configured; set at least one {PROVIDER}_API_KEY (%s)", strings.Join(KnownProviders, ", "))}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, &Error{Code: ExitInvalidConfig, Err: err}
	}
	if cfg.PricingMultiplier.LessThanOrEqual(decimal.Zero) || cfg.PricingMultiplier.GreaterThan(decimal.NewFromInt(2)) {
		return nil, &Error{Code: ExitInvalidConfig, Err: fmt.Errorf("PRICING_MULTIPLIER must be in (0, 2], got %s", cfg.PricingMultiplier)}
	}

	return cfg, nil
}

// discoverProviderCredentials reads {PROVIDER}_API_KEY/{PROVIDER}_BASE_URL
// for each known provider. A provider with a base-url override but no key
// is reported as missing rather than silently skipped.
func discoverProviderCredentials() (map[string]ProviderCredential, []string) {
	providers := make(map[string]ProviderCredential)
	var missing []string
	for _, name := range KnownProviders {
		prefix := strings.ToUpper(name)
		apiKey := os.Getenv(prefix + "_API_KEY")
		baseURL := os.Getenv(prefix + "_BASE_URL")
		switch {
		case apiKey != "":
			providers[name] = ProviderCredential{APIKey: apiKey, BaseURL: baseURL}
		case baseURL != "":
			missing = append(missing, prefix+"_API_KEY")
		}
	}
	return providers, missing
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
