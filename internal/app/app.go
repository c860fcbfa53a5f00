// Package app wires the signal service from configuration for every command.
package app

import (
	"context"
	"fmt"
	"time"

	"ni225-oracle/internal/config"
	"ni225-oracle/internal/features"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/metrics"
	"ni225-oracle/internal/ml/ensemble"
	"ni225-oracle/internal/provider"
	"ni225-oracle/internal/repository"
	"ni225-oracle/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RunLockKey is the Redis key guarding pipeline runs across processes.
const RunLockKey = "ni225:signal-run"

var (
	openPool       = pgxpool.New
	newRedisClient = lock.NewRedisClient
	loadEnsemble   = ensemble.LoadDir
)

// App holds the signal service and the connections it owns.
type App struct {
	Signals  *service.SignalService
	Universe features.Universe
	Metrics  *metrics.Recorder

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Options picks the optional parts of the graph.
type Options struct {
	// Registerer enables Prometheus metrics when set.
	Registerer prometheus.Registerer
	// SkipPersistence leaves DATABASE_URL unused.
	SkipPersistence bool
}

// Build loads the universe and models, connects Redis and Postgres when
// configured, and returns a ready signal service.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, tracer trace.Tracer, opts Options) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	universe, err := features.LoadUniverseFile(cfg.UniverseFile)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	models, err := loadEnsemble(tracer, cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("load models from %s: %w", cfg.ModelDir, err)
	}

	limiter := SourceLimiter(cfg.SourceRequestsPerSec)
	history := provider.NewYahooChartProvider(tracer, limiter, cfg.ScrapeUserAgent)
	scraper := provider.NewScraper(tracer, limiter, cfg.ScrapeUserAgent)
	builder := features.NewBuilder(history, scraper, tracer, loc, time.Now)
	assembler := features.NewAssembler(builder, universe, tracer)

	a := &App{Universe: universe}
	if opts.Registerer != nil {
		a.Metrics = metrics.New(opts.Registerer)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		locker = lock.NewRedis(client, RunLockKey, cfg.RunLockTTL())
		log.Info().Msg("using Redis run lock")
	}

	var repo service.RunRepository
	if cfg.DatabaseURL != "" && !opts.SkipPersistence {
		pool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		repo = repository.NewSignalRepository(pool, tracer)
		log.Info().Msg("persisting signal runs to Postgres")
	}

	a.Signals = service.NewSignalService(tracer, assembler, models, locker, repo, a.Metrics, log, service.Options{
		DefaultProfile:  cfg.Profile,
		OnIncompleteRow: cfg.OnIncompleteRow,
		Timeout:         cfg.RunTimeout(),
	})
	return a, nil
}

// SourceLimiter spreads perSecond requests evenly; 0 disables the cap.
func SourceLimiter(perSecond int) *provider.RateLimiter {
	if perSecond <= 0 {
		return provider.NewRateLimiter(0, 0)
	}
	return provider.NewRateLimiter(perSecond, time.Second/time.Duration(perSecond))
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
