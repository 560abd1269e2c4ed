package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the ledger transaction path, and the schedule provider.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	ledgerMarks      *prometheus.CounterVec
	ledgerSkipped    prometheus.Counter
	ledgerRetries    prometheus.Counter
	reconcileDrift   prometheus.Counter
	providerFallback prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// NewMetricsService registers the collectors.
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

	ledgerMarks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_marks_total",
		Help: "Attendance mark/edit operations committed, by status",
	}, []string{"status"})

	ledgerSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_skipped_writes_total",
		Help: "Mark operations elided because nothing changed",
	})

	ledgerRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_conflict_retries_total",
		Help: "Ledger transaction retries after serialization conflicts",
	})

	reconcileDrift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_drift_total",
		Help: "Reconciliation runs that found the summary out of step with the records",
	})

	providerFallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_provider_fallback_total",
		Help: "Schedule lookups served by the always-scheduled fallback",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache lookups that returned a stored value",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache lookups that missed",
	})

	registry.MustRegister(requestDuration, requestTotal, ledgerMarks, ledgerSkipped,
		ledgerRetries, reconcileDrift, providerFallback, cacheHits, cacheMisses)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		ledgerMarks:      ledgerMarks,
		ledgerSkipped:    ledgerSkipped,
		ledgerRetries:    ledgerRetries,
		reconcileDrift:   reconcileDrift,
		providerFallback: providerFallback,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveLedgerMark records a committed mark/edit.
func (s *MetricsService) ObserveLedgerMark(status string, skipped bool) {
	if skipped {
		s.ledgerSkipped.Inc()
		return
	}
	s.ledgerMarks.WithLabelValues(status).Inc()
}

// IncLedgerConflictRetry counts one conflict-driven retry attempt.
func (s *MetricsService) IncLedgerConflictRetry() {
	s.ledgerRetries.Inc()
}

// IncReconcileDrift counts a reconciliation mismatch.
func (s *MetricsService) IncReconcileDrift() {
	s.reconcileDrift.Inc()
}

// IncProviderFallback counts a schedule served from the fallback.
func (s *MetricsService) IncProviderFallback() {
	s.providerFallback.Inc()
}

// IncCacheHit counts a cache hit.
func (s *MetricsService) IncCacheHit() {
	s.cacheHits.Inc()
}

// IncCacheMiss counts a cache miss.
func (s *MetricsService) IncCacheMiss() {
	s.cacheMisses.Inc()
}
