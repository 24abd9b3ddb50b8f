// Package metrics exposes Prometheus metrics for the server and worker.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/zaldivarmena/mindy/pkg/mindmap"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// Collector holds every metric of one process on its own registry.
type Collector struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec

	NormalizeTotal  *prometheus.CounterVec
	DroppedEdges    prometheus.Counter
	LayoutFallbacks prometheus.Counter
	LayoutNudges    prometheus.Counter

	EditsTotal      *prometheus.CounterVec
	ExportsTotal    *prometheus.CounterVec
	ExportSizeBytes prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a collector with Go runtime and process collectors attached.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindy_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mindy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		GenerationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindy_generations_total",
			Help: "Study content generations by type and outcome",
		}, []string{"type", "outcome"}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mindy_generation_duration_seconds",
			Help:    "Time spent generating study content",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"type"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mindy_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		NormalizeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindy_mindmap_normalize_total",
			Help: "Normalized mind map payloads by adapter",
		}, []string{"adapter"}),
		DroppedEdges: f.NewCounter(prometheus.CounterOpts{
			Name: "mindy_mindmap_dropped_edges_total",
			Help: "Edges dropped for referencing missing nodes",
		}),
		LayoutFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "mindy_mindmap_layout_fallbacks_total",
			Help: "Layouts replaced by the fallback star graph",
		}),
		LayoutNudges: f.NewCounter(prometheus.CounterOpts{
			Name: "mindy_mindmap_layout_nudges_total",
			Help: "Collision nudges applied during layout",
		}),

		EditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindy_mindmap_edits_total",
			Help: "Mind map edit operations by outcome",
		}, []string{"op", "outcome"}),
		ExportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mindy_mindmap_exports_total",
			Help: "Raster exports by outcome",
		}, []string{"outcome"}),
		ExportSizeBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mindy_mindmap_export_size_bytes",
			Help:    "Size of exported PNG images",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latency per matched route.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// The Observe methods are no-ops on a nil Collector.

// ObserveGeneration records one finished generation job.
func (c *Collector) ObserveGeneration(studyType, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.GenerationsTotal.WithLabelValues(studyType, result).Inc()
	c.GenerationDuration.WithLabelValues(studyType).Observe(d.Seconds())
}

// ObserveBreaker tracks a circuit breaker state change.
func (c *Collector) ObserveBreaker(name string, state gobreaker.State) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(float64(state))
}

func (c *Collector) ObserveNormalize(report mindmap.NormalizeReport) {
	if c == nil {
		return
	}
	c.NormalizeTotal.WithLabelValues(report.Adapter).Inc()
	c.DroppedEdges.Add(float64(len(report.DroppedEdges)))
}

func (c *Collector) ObserveLayout(report mindmap.LayoutReport) {
	if c == nil {
		return
	}
	if report.Fallback {
		c.LayoutFallbacks.Inc()
	}
	c.LayoutNudges.Add(float64(report.Nudged))
}

func (c *Collector) ObserveEdit(op string, err error) {
	if c == nil {
		return
	}
	c.EditsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func (c *Collector) ObserveExport(size int, err error) {
	if c == nil {
		return
	}
	c.ExportsTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		c.ExportSizeBytes.Observe(float64(size))
	}
}
