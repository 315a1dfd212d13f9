// Package metrics provides metrics recording for LLM client operations and game turns.
package metrics

import "time"

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		provider, model, consumer string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveTurn records the outcome of one orchestrated turn.
	ObserveTurn(intent, combatAction, outcome string, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// ObserveTurn does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveTurn(_, _, _ string, _ time.Duration) {}
