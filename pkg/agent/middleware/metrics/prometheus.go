package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors on reg. Passing nil uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dm_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, consumer, and status",
			},
			[]string{"provider", "model", "consumer", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dm_llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"provider", "model", "consumer", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dm_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "consumer"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dm_turns_total",
				Help: "Total number of orchestrated turns by intent, combat plan action, and outcome",
			},
			[]string{"intent", "combat_action", "outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dm_turn_duration_seconds",
				Help:    "End-to-end turn latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"intent"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	provider, model, consumer string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(provider, model, consumer, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(provider, model, consumer, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(provider, model, consumer, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(provider, model, consumer).Observe(duration.Seconds())
}

// ObserveTurn records the outcome of one orchestrated turn.
func (p *PrometheusRecorder) ObserveTurn(intent, combatAction, outcome string, duration time.Duration) {
	p.turnsTotal.WithLabelValues(intent, combatAction, outcome).Inc()
	p.turnDuration.WithLabelValues(intent).Observe(duration.Seconds())
}
