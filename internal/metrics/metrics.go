// Package metrics exposes Prometheus metrics for chat turns, classified
// errors, extracted payloads, and published view updates.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric. Each Collector owns its registry, so several
// can coexist in one process. All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	TurnsTotal     *prometheus.CounterVec
	TurnDuration   *prometheus.HistogramVec
	TurnsInFlight  prometheus.Gauge
	ErrorsTotal    *prometheus.CounterVec
	PayloadsTotal  *prometheus.CounterVec
	UpdatesTotal   *prometheus.CounterVec
	FramesTotal    *prometheus.CounterVec
	CacheRefreshes *prometheus.CounterVec
}

// New creates a collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.TurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicechat_turns_total",
			Help: "Total number of chat turns by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	c.TurnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoicechat_turn_duration_seconds",
			Help:    "Duration of chat turns in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"mode"},
	)

	c.TurnsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "invoicechat_turns_in_flight",
			Help: "Number of chat turns currently waiting on the agent",
		},
	)

	c.ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicechat_errors_total",
			Help: "Total number of failed turns by error kind",
		},
		[]string{"kind"},
	)

	c.PayloadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicechat_payloads_total",
			Help: "Structured payload extraction results",
		},
		[]string{"result"},
	)

	c.UpdatesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicechat_view_updates_total",
			Help: "Total number of published view updates by action",
		},
		[]string{"action"},
	)

	c.FramesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicechat_stream_frames_total",
			Help: "Total number of stream frames received by type",
		},
		[]string{"type"},
	)

	c.CacheRefreshes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoicechat_cache_refreshes_total",
			Help: "Total number of record listing refreshes by status",
		},
		[]string{"status"},
	)

	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// TurnStarted marks a turn as in flight and returns a func that records its
// outcome and duration.
func (c *Collector) TurnStarted(mode string) func(outcome string) {
	if c == nil {
		return func(string) {}
	}
	start := time.Now()
	c.TurnsInFlight.Inc()
	return func(outcome string) {
		c.TurnsInFlight.Dec()
		c.TurnsTotal.WithLabelValues(mode, outcome).Inc()
		c.TurnDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

func (c *Collector) Error(kind string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(kind).Inc()
}

// Payload records an extraction result: "extracted", "invalid", or "none".
func (c *Collector) Payload(result string) {
	if c == nil {
		return
	}
	c.PayloadsTotal.WithLabelValues(result).Inc()
}

func (c *Collector) Update(action string) {
	if c == nil {
		return
	}
	c.UpdatesTotal.WithLabelValues(action).Inc()
}

func (c *Collector) Frame(frameType string) {
	if c == nil {
		return
	}
	c.FramesTotal.WithLabelValues(frameType).Inc()
}

func (c *Collector) CacheRefresh(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.CacheRefreshes.WithLabelValues(status).Inc()
}
