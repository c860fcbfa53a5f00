package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ni225-oracle/internal/app"
	"ni225-oracle/internal/bot"
	"ni225-oracle/internal/config"
	"ni225-oracle/internal/handler"
	"ni225-oracle/internal/job"
	"ni225-oracle/internal/mcpserver"
	"ni225-oracle/internal/provider"
	"ni225-oracle/pkg/logger"
	"ni225-oracle/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "ni225-oracle/docs"
)

const serviceName = "ni225-oracle-server"

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	buildAppFunc           = app.Build
	startTelegramBotFunc   = bot.StartTelegramBot
	startJobFunc           = func(j *job.SignalJob, ctx context.Context) { go j.Start(ctx) }
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           NI225 Oracle API
// @version         1.0
// @description     Daily Nikkei 225 direction signal from an ensemble of classifiers.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := buildAppFunc(ctx, cfg, log, tracer, app.Options{Registerer: reg})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build signal service")
	}
	defer a.Close()

	b, err := startTelegramBotFunc(cfg.TelegramBotToken, a.Signals, log)
	if err != nil {
		log.Error().Err(err).Msg("Telegram bot disabled")
	}

	if cfg.SignalCron != "" {
		var notifier job.Notifier
		if b != nil && cfg.TelegramChatID != 0 {
			notifier = bot.NewChatNotifier(b, cfg.TelegramChatID)
		}
		loc, _ := cfg.Location()
		j, err := job.NewSignalJob(tracer, a.Signals, notifier, cfg.SignalCron, loc, log)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid SIGNAL_CRON")
		}
		startJobFunc(j, ctx)
	}

	h := handler.New(tracer, a.Signals)

	r := newRouterFunc()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	servers := []*http.Server{{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: r,
	}}
	if cfg.MCPHTTPEnabled {
		servers = append(servers, newMCPServer(cfg, a, log))
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Str("addr", srv.Addr).Msg("listen")
			}
		}(srv)
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down server...")

	cancel()
	if b != nil {
		b.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	for _, srv := range servers {
		if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("server forced to shutdown")
		}
	}

	log.Info().Msg("Server exiting")
}

func newMCPServer(cfg *config.Config, a *app.App, log zerolog.Logger) *http.Server {
	perMin := cfg.MCPRateLimitPerMin
	limiter := provider.NewRateLimiter(perMin, time.Minute/time.Duration(perMin))
	server := mcpserver.New(tracing.Version, a.Signals, log)
	return &http.Server{
		Addr:    net.JoinHostPort(cfg.MCPHTTPBind, strconv.Itoa(cfg.MCPHTTPPort)),
		Handler: mcpserver.HTTPHandler(server, cfg.MCPAuthToken, limiter),
	}
}
