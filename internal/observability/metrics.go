package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	resolutionsTotal prometheus.Counter
	resolutionTime   prometheus.Histogram
	rejectionsTotal  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	resolutions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_authz_resolutions_total",
		Help: "Effective permission matrix resolutions.",
	})
	resolutionTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_authz_resolution_duration_seconds",
		Help:    "Duration of permission matrix resolutions.",
		Buckets: prometheus.DefBuckets,
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_authz_rejections_total",
		Help: "Rejected authorization mutations by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, resolutions, resolutionTime, rejections)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		resolutionsTotal: resolutions,
		resolutionTime:   resolutionTime,
		rejectionsTotal:  rejections,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveResolution records one matrix resolution and its duration.
func (m *Metrics) ObserveResolution(d time.Duration) {
	if m == nil {
		return
	}
	m.resolutionsTotal.Inc()
	m.resolutionTime.Observe(d.Seconds())
}

// IncRejection counts one rejected mutation by rejection kind.
func (m *Metrics) IncRejection(kind string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(kind).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
