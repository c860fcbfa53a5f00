package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ni225-oracle/internal/config"
	"ni225-oracle/internal/ml/ensemble"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type labelPredictor struct{}

func (labelPredictor) Predict(rows [][]float64) ([]float64, error) {
	return make([]float64, len(rows)), nil
}

func testConfig() *config.Config {
	return &config.Config{
		ModelDir:        "models",
		Profile:         "open-known",
		OnIncompleteRow: config.IncompleteRowDrop,
		MarketTimezone:  "Asia/Tokyo",
		RunTimeoutSecs:  5,
		RunLockTTLSecs:  5,
	}
}

func stubEnsemble(t *testing.T) {
	t.Helper()
	orig := loadEnsemble
	loadEnsemble = func(tracer trace.Tracer, dir string) (*ensemble.Service, error) {
		return ensemble.NewService(tracer, labelPredictor{}, labelPredictor{}), nil
	}
	t.Cleanup(func() { loadEnsemble = orig })
}

func TestBuildInProcess(t *testing.T) {
	stubEnsemble(t)

	reg := prometheus.NewRegistry()
	a, err := Build(context.Background(), testConfig(), zerolog.Nop(), testTracer, Options{Registerer: reg})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Signals == nil || a.Metrics == nil {
		t.Fatalf("expected service and metrics, got %+v", a)
	}
	if len(a.Universe.Tickers()) == 0 {
		t.Fatal("expected default universe")
	}
	if _, cols, err := a.Signals.Schema("full"); err != nil || len(cols) != 65 {
		t.Fatalf("Schema(full) = %d cols, %v", len(cols), err)
	}
}

func TestBuildModelError(t *testing.T) {
	orig := loadEnsemble
	loadEnsemble = func(trace.Tracer, string) (*ensemble.Service, error) {
		return nil, errors.New("missing artifact")
	}
	t.Cleanup(func() { loadEnsemble = orig })

	_, err := Build(context.Background(), testConfig(), zerolog.Nop(), testTracer, Options{})
	if err == nil || !strings.Contains(err.Error(), "load models from models") {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestBuildBadTimezone(t *testing.T) {
	stubEnsemble(t)
	cfg := testConfig()
	cfg.MarketTimezone = "Mars/Olympus"

	if _, err := Build(context.Background(), cfg, zerolog.Nop(), testTracer, Options{}); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestBuildRedisError(t *testing.T) {
	stubEnsemble(t)
	orig := newRedisClient
	var gotAddr string
	newRedisClient = func(_ context.Context, addr string) (*redis.Client, error) {
		gotAddr = addr
		return nil, errors.New("connection refused")
	}
	t.Cleanup(func() { newRedisClient = orig })

	cfg := testConfig()
	cfg.RedisURL = "redis://cache:6379/0"
	_, err := Build(context.Background(), cfg, zerolog.Nop(), testTracer, Options{})
	if err == nil || !strings.Contains(err.Error(), "connect to redis") {
		t.Fatalf("expected redis error, got %v", err)
	}
	if gotAddr != cfg.RedisURL {
		t.Fatalf("redis addr = %q", gotAddr)
	}
}

func TestBuildSkipsPersistence(t *testing.T) {
	stubEnsemble(t)
	orig := openPool
	openPool = nil
	t.Cleanup(func() { openPool = orig })

	cfg := testConfig()
	cfg.DatabaseURL = "postgres://localhost/ni225"
	a, err := Build(context.Background(), cfg, zerolog.Nop(), testTracer, Options{SkipPersistence: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	a.Close()
}

func TestSourceLimiter(t *testing.T) {
	if !SourceLimiter(0).Allow() {
		t.Fatal("disabled limiter should allow")
	}
	l := SourceLimiter(1)
	if !l.Allow() {
		t.Fatal("first request should pass")
	}
	if l.Allow() {
		t.Fatal("second request within the interval should be limited")
	}
}
