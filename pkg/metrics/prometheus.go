// Package metrics provides Prometheus metrics for the Perimeter service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Scoring and resolution
	claimsCreated       *prometheus.CounterVec
	outcomesResolved    *prometheus.CounterVec
	resolutionConflicts prometheus.Counter
	resolutionDuplicate prometheus.Counter
	scoringErrors       *prometheus.CounterVec
	scoringLatency      prometheus.Histogram
	perimeterScores     *prometheus.HistogramVec
	claimsExpired       prometheus.Counter

	// Read side
	aggregationLatency *prometheus.HistogramVec
	cacheRequests      *prometheus.CounterVec
	totalClaims        prometheus.Gauge
	totalForecasters   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	// Repository
	repositoryRecords *prometheus.GaugeVec
	repositoryLatency *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "perimeter",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	b := m.histogramBuckets

	m.claimsCreated = m.counterVec("claims_created_total", "Claims recorded, by domain", "domain")
	m.outcomesResolved = m.counterVec("outcomes_resolved_total", "Claims resolved with a scored outcome, by domain", "domain")
	m.resolutionConflicts = m.counter("resolution_conflicts_total", "Resolve attempts rejected because the claim already has an outcome")
	m.resolutionDuplicate = m.counter("resolutions_duplicate_total", "Async resolutions dropped because one is already in flight")
	m.scoringErrors = m.counterVec("scoring_errors_total", "Scoring failures by kind", "kind")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Perimeter score computation latency in milliseconds", b)
	m.perimeterScores = m.histogramVec("perimeter_score", "Distribution of computed Perimeter scores", prometheus.LinearBuckets(10, 10, 10), "domain")
	m.claimsExpired = m.counter("claims_expired_total", "Pending claims moved to expired after their deadline")

	m.aggregationLatency = m.histogramVec("aggregation_latency_milliseconds", "Leaderboard and analytics computation latency in milliseconds", b, "kind")
	m.cacheRequests = m.counterVec("cache_requests_total", "Read-side cache lookups", "kind", "result")
	m.totalClaims = m.gauge("total_claims", "Claims held by the store")
	m.totalForecasters = m.gauge("total_forecasters", "Forecasters held by the store")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", b, "endpoint", "method", "status_code")
	m.rateLimited = m.counter("http_rate_limited_total", "Requests rejected by the rate limiter")

	m.repositoryRecords = m.gaugeVec("repository_records", "Rows held by the store, by entity", "entity")
	m.repositoryLatency = m.histogramVec("repository_operation_latency_milliseconds", "Store operation latency in milliseconds", b, "operation")

	m.queueSize = m.gauge("queue_size", "Resolutions waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue fill ratio between 0 and 1")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Resolutions enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Resolutions dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Resolutions rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Configured resolution workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently resolving a claim")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Async resolution latency in milliseconds", b)
	m.workerErrors = m.counter("worker_errors_total", "Async resolutions that failed")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

// Scoring and resolution.

// RecordClaimCreated counts a new claim.
func RecordClaimCreated(domain string) { globalManager.claimsCreated.WithLabelValues(domain).Inc() }

// RecordOutcomeResolved counts a stored outcome and observes its score.
func RecordOutcomeResolved(domain string, score float64) {
	globalManager.outcomesResolved.WithLabelValues(domain).Inc()
	globalManager.perimeterScores.WithLabelValues(domain).Observe(score)
}

// RecordResolutionConflict counts a rejected re-resolution.
func RecordResolutionConflict() { globalManager.resolutionConflicts.Inc() }

// RecordResolutionDuplicate counts an async resolution dropped by dedupe.
func RecordResolutionDuplicate() { globalManager.resolutionDuplicate.Inc() }

// RecordScoringError counts a scoring failure of the given kind.
func RecordScoringError(kind string) { globalManager.scoringErrors.WithLabelValues(kind).Inc() }

// RecordScoringLatency observes one score computation.
func RecordScoringLatency(latencyMs float64) { globalManager.scoringLatency.Observe(latencyMs) }

// RecordClaimsExpired adds n expired claims.
func RecordClaimsExpired(n int) { globalManager.claimsExpired.Add(float64(n)) }

// Read side.

// RecordAggregationLatency observes a leaderboard/analytics/trend computation.
func RecordAggregationLatency(kind string, latencyMs float64) {
	globalManager.aggregationLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordCacheHit counts a cache hit.
func RecordCacheHit(kind string) { globalManager.cacheRequests.WithLabelValues(kind, "hit").Inc() }

// RecordCacheMiss counts a cache miss.
func RecordCacheMiss(kind string) { globalManager.cacheRequests.WithLabelValues(kind, "miss").Inc() }

// RecordCacheStaleSkip counts a result dropped because an invalidation
// overtook it.
func RecordCacheStaleSkip(kind string) { globalManager.cacheRequests.WithLabelValues(kind, "stale").Inc() }

// UpdateTotalClaims sets the claim count.
func UpdateTotalClaims(count int) { globalManager.totalClaims.Set(float64(count)) }

// UpdateTotalForecasters sets the forecaster count.
func UpdateTotalForecasters(count int) { globalManager.totalForecasters.Set(float64(count)) }

// HTTP.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request turned away by the limiter.
func RecordRateLimited() { globalManager.rateLimited.Inc() }

// Repository.

// UpdateRepositoryRecords sets the row count of an entity.
func UpdateRepositoryRecords(entity string, count int) {
	globalManager.repositoryRecords.WithLabelValues(entity).Set(float64(count))
}

// RecordRepositoryLatency observes one store operation.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the queue depth.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency observes one async resolution.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed async resolution.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordErrorByComponent counts an error.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the registry served on /metrics.
func GetRegistry() *prometheus.Registry { return customRegistry }
