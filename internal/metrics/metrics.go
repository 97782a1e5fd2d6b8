// Package metrics exposes Prometheus counters for ingestion, deduplication
// and deletion. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitae"

// Record kinds used as label values.
const (
	KindExperience = "experience"
	KindProject    = "project"
)

// Collector holds the application metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	ingestions          *prometheus.CounterVec
	recordsStored       *prometheus.CounterVec
	recordsDuplicate    *prometheus.CounterVec
	recordsDeleted      *prometheus.CounterVec
	structuringDegraded prometheus.Counter
	ingestDuration      prometheus.Histogram
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Resume ingestions by outcome.",
		}, []string{"status"}),
		recordsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Records appended to a collection.",
		}, []string{"kind"}),
		recordsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Candidate records dropped as duplicates.",
		}, []string{"kind"}),
		recordsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_deleted_total",
			Help:      "Records removed from a collection.",
		}, []string{"kind"}),
		structuringDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structuring_degraded_total",
			Help:      "Structuring calls whose output was discarded.",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of one resume ingestion.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.ingestions,
		c.recordsStored,
		c.recordsDuplicate,
		c.recordsDeleted,
		c.structuringDegraded,
		c.ingestDuration,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Ingestion records one pipeline run.
func (c *Collector) Ingestion(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.ingestions.WithLabelValues(status).Inc()
	c.ingestDuration.Observe(d.Seconds())
}

// Stored adds n records appended to the kind collection.
func (c *Collector) Stored(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.recordsStored.WithLabelValues(kind).Add(float64(n))
}

// Duplicates adds n candidates dropped from the kind collection.
func (c *Collector) Duplicates(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.recordsDuplicate.WithLabelValues(kind).Add(float64(n))
}

// Deleted adds n records removed from the kind collection.
func (c *Collector) Deleted(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.recordsDeleted.WithLabelValues(kind).Add(float64(n))
}

// StructuringDegraded counts one discarded structuring result.
func (c *Collector) StructuringDegraded() {
	if c == nil {
		return
	}
	c.structuringDegraded.Inc()
}

// Middleware counts requests and observes their duration, labelled by the
// matched chi route pattern so ids do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
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
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
