// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin implements the gateway's admin and observability surface:
// /admin/status, /admin/reload-pricing, /metrics, /healthz.
// Admin routes are gated by an injected auth.Gate so only allowlisted
// DIDs can reach them.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nuwa-protocol/llm-gateway/internal/apierrors"
	"github.com/nuwa-protocol/llm-gateway/internal/auth"
)

// UpstreamStatusSource reports each MCP upstream's availability, matching
// mcpproxy.Proxy.Status's shape without importing mcpproxy directly (the
// admin server only needs to read, never dispatch, upstream state).
type UpstreamStatusSource interface {
	Status() map[string]bool
}

// ProviderSource reports the configured provider names, for the status
// endpoint's inventory. Only names are exposed; credentials never are.
type ProviderSource interface {
	Names() []string
}

// PricingReloader reloads the pricing registry's snapshot from the
// configured table files, for /admin/reload-pricing.
type PricingReloader interface {
	ReloadFromDisk() error
}

// Server is the admin HTTP surface described here
type Server struct {
	gate      *auth.Gate
	mcp       UpstreamStatusSource
	providers ProviderSource
	pricing   PricingReloader
	registry  prometheus.Gatherer
	log       *slog.Logger
	network   string

	httpServer *http.Server
}

// New builds a Server. mcp and pricing may be nil if the gateway was
// started without MCP proxying or without a reloadable pricing registry;
// the corresponding admin capability is reported as unavailable.
func New(gate *auth.Gate, mcp UpstreamStatusSource, providers ProviderSource, pricing PricingReloader, registry prometheus.Gatherer, network string, log *slog.Logger) *Server {
	return &Server{gate: gate, mcp: mcp, providers: providers, pricing: pricing, registry: registry, network: network, log: log}
}

// Mux builds the admin http.ServeMux, exposed separately from Serve so
// tests can exercise routes via httptest without binding a listener.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/admin/status", s.withAdmin(s.handleStatus))
	mux.HandleFunc("/admin/reload-pricing", s.withAdmin(s.handleReloadPricing))
	return mux
}

// Serve starts the admin server on lis in a goroutine and returns
// immediately.
func (s *Server) Serve(lis net.Listener) {
	s.httpServer = &http.Server{Handler: s.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if s.log != nil {
			s.log.Info("starting admin server", slog.String("address", lis.Addr().String()))
		}
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.log != nil {
				s.log.Error("admin server failed", slog.Any("err", err))
			}
		}
	}()
}

// Close gracefully shuts down the admin server, if Serve was called.
func (s *Server) Close(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

type statusResponse struct {
	Environment string   `json:"environment"`
	Registered  []string `json:"registered"`
	Available   []string `json:"available"`
	Unavailable []string `json:"unavailable"`
	Providers   []string `json:"providers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Environment: s.network}
	if s.providers != nil {
		resp.Providers = s.providers.Names()
	}
	if s.mcp != nil {
		for name, available := range s.mcp.Status() {
			resp.Registered = append(resp.Registered, name)
			if available {
				resp.Available = append(resp.Available, name)
			} else {
				resp.Unavailable = append(resp.Unavailable, name)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReloadPricing(w http.ResponseWriter, _ *http.Request) {
	if s.pricing == nil {
		writeError(w, apierrors.NotFound("pricing_reload_unavailable", "no reloadable pricing registry is configured"))
		return
	}
	if err := s.pricing.ReloadFromDisk(); err != nil {
		writeError(w, apierrors.Internal("", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withAdmin wraps handler with authentication and the admin allowlist
// check.
func (s *Server) withAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did, apiErr := s.gate.Authenticate(r)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		if apiErr := s.gate.RequireAdmin(did); apiErr != nil {
			writeError(w, apiErr)
			return
		}
		handler(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, apiErr *apierrors.Error) {
	writeJSON(w, apiErr.Status, apiErr.ToJSON())
}
