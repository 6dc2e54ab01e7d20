// Package metrics provides Prometheus metrics collection for the relay's
// inbound HTTP traffic and its outbound completion calls.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/lewisedginton/aiboy_relay/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "relay"
)

var durationBuckets = []float64{0.1, 0.3, 0.5, 0.7, 1.0, 3.0, 5.0, 7.0, 10.0, 30.0, 60.0}

// Metrics provides Prometheus metrics collection. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPDurationHistogram    prometheus.Histogram

	UpstreamRequestsCounter   *prometheus.CounterVec
	UpstreamDurationHistogram prometheus.Histogram

	mu                   sync.Mutex
	httpResponseCounters map[int]prometheus.Counter

	log    logger.Logger
	server *http.Server
	addr   net.Addr
}

// NewMetrics creates a new Metrics instance with the specified collectors enabled.
func NewMetrics(httpCounters, upstreamCounters bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg:                  prometheus.NewRegistry(),
		httpResponseCounters: make(map[int]prometheus.Counter),
		log:                  l,
	}
	if m.log == nil {
		m.log = logger.NewNopLogger()
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   durationBuckets,
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPDurationHistogram)
	}
	if upstreamCounters {
		m.UpstreamRequestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "upstream_requests_total",
			Help:      "Completion provider calls by outcome",
		}, []string{"outcome"})
		m.UpstreamDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "upstream_request_duration_seconds",
			Help:      "Completion provider call duration in seconds",
			Buckets:   durationBuckets,
		})
		m.reg.MustRegister(m.UpstreamRequestsCounter, m.UpstreamDurationHistogram)
	}
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen starts the metrics HTTP server on addr (host:port) in the background.
// Serve errors other than a clean shutdown are sent on the returned channel, which
// is closed when the server exits.
func (m *Metrics) Listen(addr string) (<-chan error, error) {
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bound, errChan, err := utils.Listen(m.server, m.log)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	m.addr = bound
	m.log.Info("Metrics listener started", logger.StringField("address", bound.String()))
	return errChan, nil
}

// Addr returns the bound metrics address, or nil before Listen succeeds.
func (m *Metrics) Addr() net.Addr {
	if m == nil {
		return nil
	}
	return m.addr
}

// Shutdown stops the metrics listener if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	m.log.Info("Stopping metrics listener")
	return m.server.Shutdown(ctx)
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.httpResponseCounters[code]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      fmt.Sprintf("total_%d_http_responses", code),
			Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
		})
		m.reg.MustRegister(c)
		m.httpResponseCounters[code] = c
	}
	c.Inc()
}

// ObserveUpstream records one completion provider call.
func (m *Metrics) ObserveUpstream(outcome string, duration time.Duration) {
	if m == nil || m.UpstreamRequestsCounter == nil {
		return
	}
	m.UpstreamRequestsCounter.WithLabelValues(outcome).Inc()
	m.UpstreamDurationHistogram.Observe(duration.Seconds())
}

// HTTPMiddleware returns a chi-compatible middleware that tracks HTTP metrics
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.TotalHTTPRequestsCounter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
