// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the bridge.
package observability

import "github.com/prometheus/client_golang/prometheus"

// TurnBuckets defines histogram buckets suited for agent turn latencies,
// ranging from 100ms to 120s.
var TurnBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_request_duration_seconds",
			Help:    "Request duration",
			Buckets: TurnBuckets,
		},
		[]string{"method"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bruecke_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// TurnDuration records full engine turn duration in seconds.
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bruecke_engine_turn_duration_seconds",
			Help:    "Engine turn duration",
			Buckets: TurnBuckets,
		},
		[]string{"model", "mode"},
	)

	// TurnsTotal counts engine turns by model, mode, and outcome.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_engine_turns_total",
			Help: "Engine turns",
		},
		[]string{"model", "mode", "status"},
	)

	// EngineTokensTotal counts tokens reported by the engine by direction
	// (input/output).
	EngineTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_engine_tokens_total",
			Help: "Engine token count",
		},
		[]string{"model", "direction"},
	)

	// StreamEventsTotal counts emitted stream events by type.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bruecke_stream_events_total",
			Help: "Emitted stream events",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		TurnDuration,
		TurnsTotal,
		EngineTokensTotal,
		StreamEventsTotal,
	)
}
