package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/perimeter/internal/adapters/cache"
	"github.com/okian/perimeter/internal/adapters/http/api"
	"github.com/okian/perimeter/internal/adapters/http/swagger"
	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/adapters/repository/sqlite"
	app "github.com/okian/perimeter/internal/app"
	"github.com/okian/perimeter/internal/config"
	"github.com/okian/perimeter/internal/domain/ranges"
	"github.com/okian/perimeter/internal/domain/scoring"
	"github.com/okian/perimeter/pkg/logger"
	"github.com/okian/perimeter/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogFormat == "json")); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, handler, store, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// build wires storage, scoring, cache, service and routes from cfg. The
// caller owns the returned store.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, http.Handler, repository.Store, error) {
	registry := ranges.Default()
	if cfg.RangesFile != "" {
		r, err := ranges.LoadFile(cfg.RangesFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load ranges: %w", err)
		}
		registry = r
		log.Info(ctx, "loaded numeric ranges", logger.String("file", cfg.RangesFile))
	}
	matcher, err := scoring.MatcherByName(cfg.CategoricalMatcher)
	if err != nil {
		return nil, nil, nil, err
	}
	engine := scoring.NewEngine(scoring.WithRegistry(registry), scoring.WithCategoricalMatcher(matcher))

	var store repository.Store
	if cfg.StoragePath == "" {
		store = repository.NewMemoryStore()
		log.Info(ctx, "using in-memory store")
	} else {
		s, err := sqlite.Open(ctx, cfg.StoragePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open store: %w", err)
		}
		store = s
		log.Info(ctx, "using sqlite store", logger.String("path", cfg.StoragePath))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithEngine(engine),
		app.WithCache(cache.New(cache.WithTTL(cfg.CacheTTL()), cache.WithCleanupInterval(cfg.CacheCleanup()))),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		app.WithDefaultMinClaims(cfg.DefaultMinClaims),
		app.WithTrendDays(cfg.DefaultTrendDays, cfg.MaxTrendDays),
		app.WithExpirySweep(cfg.ExpirySweep()),
	)

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc,
		api.WithLogger(log),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Register(mux)

	return svc, mux, store, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes store and queue gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the gauges as a side effect.
			_ = svc.GetStats(ctx)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
