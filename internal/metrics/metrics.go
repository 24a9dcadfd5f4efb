// Package metrics exposes Prometheus collectors for the API and the audit
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scanara"

// Audit outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

type Audit struct {
	Started  prometheus.Counter
	Finished *prometheus.CounterVec
	Duration prometheus.Histogram
	Score    prometheus.Histogram
	InFlight prometheus.Gauge
}

func NewAudit(reg prometheus.Registerer) *Audit {
	f := promauto.With(reg)
	return &Audit{
		Started: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_started_total",
			Help:      "The total number of audits handed to the engine",
		}),
		Finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_finished_total",
			Help:      "The total number of audits by outcome",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_duration_seconds",
			Help:      "Time from engine start to the terminal write",
			Buckets:   prometheus.DefBuckets,
		}),
		Score: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_score",
			Help:      "Compliance score of completed audits",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audits_in_flight",
			Help:      "Audits currently being analyzed",
		}),
	}
}

// Observe records a finished audit.
func (a *Audit) Observe(outcome string, took time.Duration) {
	a.Finished.WithLabelValues(outcome).Inc()
	a.Duration.Observe(took.Seconds())
}

type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Middleware counts requests by chi route pattern so that ids in the path
// do not explode label cardinality.
func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		h.latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewServer exposes reg on /metrics at addr.
func NewServer(addr string, reg *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
