package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// layer and the stats cache.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	fanOutSize      prometheus.Histogram
}

// NewMetricsService registers the service collectors on a private registry.
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stats_cache_hits_total",
		Help: "Total stats cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stats_cache_misses_total",
		Help: "Total stats cache misses",
	})

	fanOutSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "task_fanout_students",
		Help:    "Number of students reached per task fan-out",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})

	registry.MustRegister(
		requestDuration,
		requestTotal,
		cacheHits,
		cacheMisses,
		fanOutSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		fanOutSize:      fanOutSize,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveRequest records one finished HTTP request.
func (s *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCacheHit counts a stats cache hit.
func (s *MetricsService) RecordCacheHit() { s.cacheHits.Inc() }

// RecordCacheMiss counts a stats cache miss.
func (s *MetricsService) RecordCacheMiss() { s.cacheMisses.Inc() }

// RecordFanOut records the audience size of a task fan-out.
func (s *MetricsService) RecordFanOut(students int) {
	s.fanOutSize.Observe(float64(students))
}
