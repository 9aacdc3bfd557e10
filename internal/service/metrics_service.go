package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the workflow
// and reconciliation pipelines.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	syncTotal       *prometheus.CounterVec
	bulkRowTotal    *prometheus.CounterVec
	erpLookup       prometheus.Observer
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Registration request state transitions by action and outcome",
	}, []string{"action", "outcome"})

	syncTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_sync_total",
		Help: "ERP push outcomes",
	}, []string{"outcome"})

	bulkRowTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_rows_classified_total",
		Help: "Bulk reconciliation row classifications",
	}, []string{"operation"})

	erpLookup := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "erp_lookup_duration_seconds",
		Help:    "Latency of ERP record lookups during reconciliation",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, syncTotal, bulkRowTotal, erpLookup, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		syncTotal:       syncTotal,
		bulkRowTotal:    bulkRowTotal,
		erpLookup:       erpLookup,
	}
}

// Handler exposes the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one handled HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// CountTransition records a workflow action outcome.
func (s *MetricsService) CountTransition(action, outcome string) {
	s.transitionTotal.WithLabelValues(action, outcome).Inc()
}

// CountSync records an ERP push outcome.
func (s *MetricsService) CountSync(outcome string) {
	s.syncTotal.WithLabelValues(outcome).Inc()
}

// CountBulkRow records one classified row.
func (s *MetricsService) CountBulkRow(operation string) {
	s.bulkRowTotal.WithLabelValues(operation).Inc()
}

// ObserveERPLookup records the latency of one reconciliation lookup.
func (s *MetricsService) ObserveERPLookup(duration time.Duration) {
	s.erpLookup.Observe(duration.Seconds())
}
