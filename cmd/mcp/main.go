// Command mcp serves the prediction tool to MCP clients over stdio or
// streamable HTTP (MCP_TRANSPORT).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ni225-oracle/internal/app"
	"ni225-oracle/internal/config"
	"ni225-oracle/internal/mcpserver"
	"ni225-oracle/internal/provider"
	"ni225-oracle/pkg/logger"
	"ni225-oracle/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	buildAppFunc   = app.Build
	runStdioFunc   = func(ctx context.Context, server *mcp.Server) error {
		return server.Run(ctx, &mcp.StdioTransport{})
	}
	serveHTTPFunc = func(ctx context.Context, srv *http.Server) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()

	// stdout belongs to the stdio transport
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tp, tracer, err := initTracerFunc(ctx, "ni225-oracle-mcp")
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Debug().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	a, err := buildAppFunc(ctx, cfg, log, tracer, app.Options{})
	if err != nil {
		return fmt.Errorf("build signal service: %w", err)
	}
	defer a.Close()

	server := mcpserver.New(tracing.Version, a.Signals, log)
	if cfg.MCPTransport == "http" {
		return serveHTTP(ctx, cfg, server, log)
	}

	log.Info().Msg("serving MCP over stdio")
	if err := runStdioFunc(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, server *mcp.Server, log zerolog.Logger) error {
	if cfg.MCPAuthToken == "" {
		log.Warn().Msg("MCP_AUTH_TOKEN not set, HTTP endpoint is unauthenticated")
	}
	perMin := cfg.MCPRateLimitPerMin
	limiter := provider.NewRateLimiter(perMin, time.Minute/time.Duration(perMin))
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.MCPHTTPBind, strconv.Itoa(cfg.MCPHTTPPort)),
		Handler:           mcpserver.HTTPHandler(server, cfg.MCPAuthToken, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Msg("serving MCP over HTTP")
	if err := serveHTTPFunc(ctx, srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp http: %w", err)
	}
	return nil
}
