// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Command gateway runs the LLM Gateway + MCP Server Proxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nuwa-protocol/llm-gateway/internal/config"
	"github.com/nuwa-protocol/llm-gateway/internal/version"
)

type cmd struct {
	Run         cmdRun         `cmd:"" help:"Run the gateway."`
	Version     struct{}       `cmd:"" help:"Show version."`
	Healthcheck cmdHealthcheck `cmd:"" help:"Check whether a running gateway's admin server is healthy."`
}

type cmdRun struct {
	Port           int    `help:"HTTP port for LLM/MCP traffic." default:"8080"`
	AdminPort      int    `help:"HTTP port for the admin server (serves /metrics, /healthz, /admin/*)." default:"9090"`
	PricingDir     string `name:"pricing-dir" help:"Directory of per-provider pricing table JSON files." type:"path"`
	MCPRouteConfig string `name:"mcp-route-config" help:"Path to an MCP route-rule YAML file." type:"path"`
}

type cmdHealthcheck struct {
	Port int `help:"Admin port to check." default:"9090"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, run, healthcheck)
}

type (
	runFn         func(ctx context.Context, c cmdRun, stdout, stderr io.Writer) error
	healthcheckFn func(ctx context.Context, port int, stdout io.Writer) error
)

// doMain keeps every side effect (stdio, exit) parameterized so tests
// can drive the CLI without touching the process's real
// stdout/stderr/exit code.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int), rf runFn, hf healthcheckFn) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("gateway"),
		kong.Description("LLM Gateway + MCP Server Proxy"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		log.Fatalf("error creating CLI parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	switch parsed.Command() {
	case "version":
		_, _ = fmt.Fprintf(stdout, "gateway: %s\n", version.Parse())
	case "run":
		if err := rf(ctx, c.Run, stdout, stderr); err != nil {
			var cfgErr *config.Error
			if errors.As(err, &cfgErr) {
				_, _ = fmt.Fprintf(stderr, "error running gateway: %v\n", err)
				exitFn(int(cfgErr.Code))
				return
			}
			log.Fatalf("error running gateway: %v", err)
		}
	case "healthcheck":
		if err := hf(ctx, c.Healthcheck.Port, stdout); err != nil {
			log.Fatalf("health check failed: %v", err)
		}
	default:
		panic("unreachable")
	}
}
