// Package service ties the scoring and aggregation core to storage, the
// resolution queue and the read-model cache. The HTTP API depends on it.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/perimeter/internal/adapters/cache"
	"github.com/okian/perimeter/internal/adapters/mq/queue"
	"github.com/okian/perimeter/internal/adapters/mq/worker"
	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/domain/dedupe"
	"github.com/okian/perimeter/internal/domain/ranking"
	"github.com/okian/perimeter/internal/domain/scoring"
	"github.com/okian/perimeter/pkg/logger"
	"github.com/okian/perimeter/pkg/metrics"
)

const tracerName = "github.com/okian/perimeter/internal/app"

// Defaults.
const (
	DefaultQueueSize        = queue.DefaultCapacity
	DefaultDedupeSize       = dedupe.DefaultMaxSize
	DefaultMaxLimit         = 500
	DefaultTrendDays        = 30
	DefaultMaxTrendDays     = 365
	DefaultExpirySweep      = time.Minute
	TopForecastersInSummary = 10
)

// Service implements the API dependencies for the Perimeter engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	engine  *scoring.Engine
	cache   *cache.Cache
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	tracer  trace.Tracer

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	maxLimit         int
	defaultMinClaims int
	defaultTrendDays int
	maxTrendDays     int
	expirySweep      time.Duration
	now              func() time.Time

	// State
	started   bool
	cancel    context.CancelFunc
	sweepDone chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The default is an in-memory store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithEngine sets the scoring engine.
func WithEngine(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithCache sets the read-model cache. A nil cache disables caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithWorkerCount sets the number of resolution workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the resolution queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the in-flight guard capacity.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page size.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithDefaultMinClaims sets the leaderboard min_claims default.
func WithDefaultMinClaims(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultMinClaims = n
		}
	}
}

// WithTrendDays sets the default and maximum trend window.
func WithTrendDays(def, maxDays int) Option {
	return func(s *Service) {
		if def > 0 && maxDays >= def {
			s.defaultTrendDays = def
			s.maxTrendDays = maxDays
		}
	}
}

// WithExpirySweep sets how often overdue claims are expired. Zero disables
// the background sweep.
func WithExpirySweep(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.expirySweep = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Synchronous operations work right away; queued
// resolutions and the expiry sweep need Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        DefaultQueueSize,
		dedupeSize:       DefaultDedupeSize,
		maxLimit:         DefaultMaxLimit,
		defaultMinClaims: ranking.DefaultMinClaims,
		defaultTrendDays: DefaultTrendDays,
		maxTrendDays:     DefaultMaxTrendDays,
		expirySweep:      DefaultExpirySweep,
		now:              time.Now,
		tracer:           otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("service")
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithMemoryClock(s.now))
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start launches the resolution workers and the expiry sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting perimeter service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithLogger(s.logger),
		worker.WithDeduper(s.deduper),
	)
	s.pool.Start(runCtx)

	s.sweepDone = make(chan struct{})
	go s.sweepLoop(runCtx, s.sweepDone)

	s.started = true
	s.logger.Info(ctx, "perimeter service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("expirySweep", s.expirySweep),
	)
	return nil
}

// Stop drains queued resolutions and stops background work. It does not
// close the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping perimeter service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	<-s.sweepDone

	s.started = false
	s.logger.Info(ctx, "perimeter service stopped",
		logger.Int("processed", int(s.pool.Processed())),
		logger.Int("failed", int(s.pool.Failed())),
	)
}

// Health reports store connectivity.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"inFlight":     s.deduper.Size(),
		"domains":      s.engine.Registry().Domains(),
		"cacheEnabled": s.cache.Enabled(),
		"cacheEntries": s.cache.Len(),
	}

	if counts, err := s.store.Count(ctx); err == nil {
		stats["claims"] = counts.Claims
		stats["outcomes"] = counts.Outcomes
		stats["forecasters"] = counts.Forecasters
		metrics.UpdateTotalClaims(counts.Claims)
		metrics.UpdateTotalForecasters(counts.Forecasters)
	} else {
		s.logger.Warn(ctx, "count failed", logger.Error(err))
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		metrics.UpdateQueueSize(s.queue.Len(ctx))
	}
	return stats
}

// InFlight returns how many queued resolutions are not processed yet.
func (s *Service) InFlight() int64 { return s.deduper.Size() }

func (s *Service) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
