// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/nuwa-protocol/llm-gateway/internal/admin"
	"github.com/nuwa-protocol/llm-gateway/internal/auth"
	"github.com/nuwa-protocol/llm-gateway/internal/billing"
	"github.com/nuwa-protocol/llm-gateway/internal/config"
	"github.com/nuwa-protocol/llm-gateway/internal/mcpproxy"
	"github.com/nuwa-protocol/llm-gateway/internal/metrics"
	"github.com/nuwa-protocol/llm-gateway/internal/orchestrator"
	"github.com/nuwa-protocol/llm-gateway/internal/pricing"
	"github.com/nuwa-protocol/llm-gateway/internal/provider"
	"github.com/nuwa-protocol/llm-gateway/internal/router"
)

// defaultBaseURLs is consulted when a provider's credential discovery
// did not set an explicit base URL override.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com",
	"anthropic":  "https://api.anthropic.com",
	"google":     "https://generativelanguage.googleapis.com",
	"openrouter": "https://openrouter.ai/api",
	"litellm":    "http://localhost:4000",
}

func newAdapter(name string) provider.Adapter {
	switch name {
	case "openai":
		return provider.NewOpenAI()
	case "anthropic":
		return provider.NewAnthropic()
	case "google":
		return provider.NewGoogle()
	case "openrouter":
		return provider.NewOpenRouter()
	case "litellm":
		return provider.NewLiteLLM()
	default:
		return nil
	}
}

func authKindFor(name string) provider.AuthKind {
	switch name {
	case "google":
		return provider.AuthHeader
	case "anthropic":
		return provider.AuthHeader
	default:
		return provider.AuthBearer
	}
}

// buildProviderRegistry turns the discovered credentials in cfg into a
// populated provider.Registry.
func buildProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	for name, cred := range cfg.Providers {
		adapter := newAdapter(name)
		if adapter == nil {
			return nil, fmt.Errorf("unknown provider %q in configuration", name)
		}
		baseURL := cred.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURLs[name]
		}
		reg.Register(&provider.Record{
			Name:                  name,
			BaseURL:               baseURL,
			AuthKind:              authKindFor(name),
			APIKey:                cred.APIKey,
			SupportsNativeUsdCost: adapter.SupportsNativeUsdCost(),
			AllowedPaths:          adapter.SupportedPaths(),
			Adapter:               adapter,
		})
	}
	return reg, nil
}

// pricingReloader adapts a *pricing.Registry bound to a fixed directory
// into the admin.PricingReloader interface.
type pricingReloader struct {
	reg *pricing.Registry
	dir string
}

func (p *pricingReloader) ReloadFromDisk() error {
	if p.dir == "" {
		return fmt.Errorf("no pricing directory configured")
	}
	return p.reg.ReloadFromDir(p.dir)
}

// registerMCPUpstreams builds an mcpproxy.Upstream for each configured
// entry and registers it with proxy. Stdio upstreams are started
// (spawning their child process) before registration; a failed spawn
// aborts startup rather than leaving the proxy with a half-wired
// upstream.
func registerMCPUpstreams(ctx context.Context, proxy *mcpproxy.Proxy, upstreams []config.MCPUpstreamConfig, log *slog.Logger) error {
	var dockerCli *dockerclient.Client
	for _, u := range upstreams {
		switch u.Kind {
		case "httpstream":
			proxy.Register(u.Name, mcpproxy.NewHTTPStreamUpstream(u.Name, u.BaseURL, u.AuthHeader, u.AuthValue, &http.Client{}))
		case "stdio":
			restartPolicy, err := mcpproxy.ParseRestartPolicy(u.RestartPolicy)
			if err != nil {
				return fmt.Errorf("upstream %q: %w", u.Name, err)
			}
			stdio := mcpproxy.NewStdioUpstream(u.Name, u.Command, u.Cwd, u.Env, log)
			stdio.SetRestartPolicy(restartPolicy)
			if err := stdio.Start(ctx); err != nil {
				return fmt.Errorf("start stdio upstream %q: %w", u.Name, err)
			}
			proxy.Register(u.Name, stdio)
		case "docker":
			restartPolicy, err := mcpproxy.ParseRestartPolicy(u.RestartPolicy)
			if err != nil {
				return fmt.Errorf("upstream %q: %w", u.Name, err)
			}
			if dockerCli == nil {
				cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
				if err != nil {
					return fmt.Errorf("create docker client for upstream %q: %w", u.Name, err)
				}
				dockerCli = cli
			}
			docker := mcpproxy.NewDockerStdioUpstream(u.Name, u.Image, u.Command, u.Env, dockerCli, log)
			docker.SetRestartPolicy(restartPolicy)
			if err := docker.Start(ctx); err != nil {
				return fmt.Errorf("start docker upstream %q: %w", u.Name, err)
			}
			proxy.Register(u.Name, docker)
		default:
			return fmt.Errorf("upstream %q: unknown kind %q", u.Name, u.Kind)
		}
	}
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Debug {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func run(ctx context.Context, c cmdRun, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg, stderr)

	providers, err := buildProviderRegistry(cfg)
	if err != nil {
		return err
	}

	pricingReg, err := pricing.NewRegistry(cfg.PricingMultiplier)
	if err != nil {
		return err
	}
	if c.PricingDir != "" {
		if err := pricingReg.ReloadFromDir(c.PricingDir); err != nil {
			return fmt.Errorf("load pricing config: %w", err)
		}
	}

	keyResolver := auth.NewDidKeyResolver()
	gate := auth.New(auth.NewJOSEVerifier(keyResolver), cfg.AdminDIDs)

	hook := billing.Chain(log, billing.NewRateLimitHook(600), billing.NewLoggingHook(log))

	llmRouter := router.New(providers)
	llmRouter.LegacyOpenRouterAlias = cfg.LegacyOpenRouterAlias

	orch := orchestrator.New(gate, llmRouter, pricingReg, hook, &http.Client{}, log)

	mcpRouteConfigPath := cfg.MCPRouteConfigPath
	if c.MCPRouteConfig != "" {
		mcpRouteConfigPath = c.MCPRouteConfig
	}
	mcpRules, mcpDefault, mcpUpstreams, err := config.LoadMCPRoutes(mcpRouteConfigPath)
	if err != nil {
		return fmt.Errorf("load mcp route config: %w", err)
	}
	mcpRouter := router.NewMCPRouter(mcpRules, mcpDefault)
	mcpProxy := mcpproxy.NewProxy(mcpRouter, log)
	if err := registerMCPUpstreams(ctx, mcpProxy, mcpUpstreams, log); err != nil {
		return fmt.Errorf("start mcp upstreams: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promExporter, err := otelprom.New(otelprom.WithRegisterer(promReg))
	if err != nil {
		return fmt.Errorf("create prometheus metrics exporter: %w", err)
	}
	meter, shutdownMetrics, err := metrics.NewMetricsFromEnv(ctx, stdout, promExporter)
	if err != nil {
		return fmt.Errorf("configure metrics: %w", err)
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	orch.NewRequestMetrics = func() metrics.ChatCompletionMetrics { return metrics.NewChatCompletion(meter) }
	mcpProxy.SetMetrics(metrics.NewMCP(meter, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/", orch.HandleLLMRequest)

	adminServer := admin.New(gate, mcpProxy, providers, &pricingReloader{reg: pricingReg, dir: c.PricingDir}, promReg, cfg.Network, log)

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, c.Port))
	if err != nil {
		return fmt.Errorf("listen on %s:%d: %w", cfg.Host, c.Port, err)
	}
	adminLis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, c.AdminPort))
	if err != nil {
		return fmt.Errorf("listen on admin port %d: %w", c.AdminPort, err)
	}

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()
	adminServer.Serve(adminLis)

	log.Info("gateway started", slog.Int("port", c.Port), slog.Int("admin_port", c.AdminPort))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("gateway server failed", slog.Any("err", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = adminServer.Close(shutdownCtx)
	_ = mcpProxy.Close(shutdownCtx)

	return nil
}
