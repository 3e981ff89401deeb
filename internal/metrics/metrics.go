package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tool host
type Metrics struct {
	registry *prometheus.Registry

	// Tool call metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Registry metrics
	ToolsRegistered prometheus.Gauge

	// Discovery metrics
	DiscoveryFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_calls_total",
				Help: "Total number of tool calls by outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		ToolsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tools_registered",
				Help: "Number of tools currently registered",
			},
		),

		DiscoveryFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_failures_total",
				Help: "Total number of manifest files or entries skipped during discovery",
			},
			[]string{"reason"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolCallsTotal)
	m.registry.MustRegister(m.ToolCallDuration)
	m.registry.MustRegister(m.ToolsRegistered)
	m.registry.MustRegister(m.DiscoveryFailuresTotal)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// ToolCalled records one finished tool call.
func (m *Metrics) ToolCalled(name, outcome string, duration time.Duration) {
	m.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ToolCountChanged sets the registered tools gauge.
func (m *Metrics) ToolCountChanged(count int) {
	m.ToolsRegistered.Set(float64(count))
}

// DiscoveryFailed counts a skipped manifest file or entry.
func (m *Metrics) DiscoveryFailed(reason string) {
	m.DiscoveryFailuresTotal.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
