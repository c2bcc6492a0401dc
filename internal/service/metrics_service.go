package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the scheduler.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	batchDuration   *prometheus.HistogramVec
	placementsTotal *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	batchesInFlight prometheus.Gauge
	lockContention  prometheus.Counter
	resolutions     *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_batch_duration_seconds",
		Help:    "Wall time of scheduling batches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind", "status"})

	placementsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_placements_total",
		Help: "Placements committed by scheduling batches",
	}, []string{"kind"})

	failuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_failures_total",
		Help: "Scheduling failures recorded, by reason",
	}, []string{"kind", "reason"})

	batchesInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_batches_in_flight",
		Help: "Scheduling batches currently running",
	})

	lockContention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_lock_contention_total",
		Help: "Batch requests rejected because the semester was locked",
	})

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_failure_transitions_total",
		Help: "Failure status transitions applied by operators",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		batchDuration, placementsTotal, failuresTotal, batchesInFlight, lockContention, resolutions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		batchDuration:   batchDuration,
		placementsTotal: placementsTotal,
		failuresTotal:   failuresTotal,
		batchesInFlight: batchesInFlight,
		lockContention:  lockContention,
		resolutions:     resolutions,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// BatchStarted bumps the in-flight gauge.
func (m *MetricsService) BatchStarted() {
	if m == nil {
		return
	}
	m.batchesInFlight.Inc()
}

// ObserveBatch records the outcome of a finished batch and decrements the in-flight gauge.
func (m *MetricsService) ObserveBatch(kind models.TimetableKind, status models.BatchStatus, placements int, reasons map[string]int, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchesInFlight.Dec()
	m.batchDuration.WithLabelValues(string(kind), string(status)).Observe(duration.Seconds())
	m.placementsTotal.WithLabelValues(string(kind)).Add(float64(placements))
	for reason, count := range reasons {
		m.failuresTotal.WithLabelValues(string(kind), reason).Add(float64(count))
	}
}

// RecordLockContention counts rejected batch requests.
func (m *MetricsService) RecordLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

// RecordFailureTransition counts resolve, ignore and reopen actions.
func (m *MetricsService) RecordFailureTransition(status models.FailureStatus) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(status)).Inc()
}
