package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus counters/histograms for the engine, scheduler,
// pipeline executor, and API executor. Adapted from nexus's observability
// metrics (same promauto registration pattern, trimmed to this domain).
type Metrics struct {
	// TransitionsTotal counts successful state transitions by event name.
	TransitionsTotal *prometheus.CounterVec

	// RuleFiresTotal counts rule matches by outcome (matched|no_candidate|no_condition_true).
	RuleFiresTotal *prometheus.CounterVec

	// PipelineRunsTotal counts pipeline runs by pipeline name and outcome (success|failure).
	PipelineRunsTotal *prometheus.CounterVec

	// PipelineStepDuration measures per-step execution latency in seconds.
	PipelineStepDuration *prometheus.HistogramVec

	// APICallsTotal counts preset API calls by name and outcome.
	APICallsTotal *prometheus.CounterVec

	// APICallDuration measures preset API call latency in seconds.
	APICallDuration *prometheus.HistogramVec

	// SandboxViolationsTotal counts rejected expression evaluations.
	SandboxViolationsTotal *prometheus.CounterVec

	// ActiveTimers is a gauge of currently armed timer/interval/schedule rules.
	ActiveTimers prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lampcore",
				Name:      "transitions_total",
				Help:      "Total state transitions by triggering event.",
			},
			[]string{"event"},
		),
		RuleFiresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lampcore",
				Name:      "rule_fires_total",
				Help:      "Rule evaluation outcomes by event.",
			},
			[]string{"event", "outcome"},
		),
		PipelineRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lampcore",
				Name:      "pipeline_runs_total",
				Help:      "Pipeline runs by name and outcome.",
			},
			[]string{"pipeline", "outcome"},
		),
		PipelineStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lampcore",
				Name:      "pipeline_step_duration_seconds",
				Help:      "Pipeline step execution latency in seconds.",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"step_kind"},
		),
		APICallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lampcore",
				Name:      "api_calls_total",
				Help:      "Preset API executor calls by name and outcome.",
			},
			[]string{"api", "outcome"},
		),
		APICallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lampcore",
				Name:      "api_call_duration_seconds",
				Help:      "Preset API call latency in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"api"},
		),
		SandboxViolationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lampcore",
				Name:      "sandbox_violations_total",
				Help:      "Expression evaluations rejected by the sandbox.",
			},
			[]string{"flavor"},
		),
		ActiveTimers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lampcore",
				Name:      "active_timers",
				Help:      "Number of currently armed timer/interval/schedule rules.",
			},
		),
	}
}
