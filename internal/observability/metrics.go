package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the agent runtime and the
// tool-serving surfaces.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	ModelCallsTotal *prometheus.CounterVec
	ToolCallsTotal  *prometheus.CounterVec
	TurnRounds      prometheus.Histogram
	ToolDuration    *prometheus.HistogramVec
}

// NewMetrics creates a metrics set backed by its own registry so tests can
// instantiate it repeatedly without collector collisions.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyage",
			Name:      "turns_total",
			Help:      "Completed user turns by outcome.",
		}, []string{"outcome"}),
		ModelCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyage",
			Name:      "model_calls_total",
			Help:      "Chat model completions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voyage",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		TurnRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voyage",
			Name:      "turn_rounds",
			Help:      "Model rounds needed to finish a turn.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voyage",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
