// Package telemetry exposes the counter and timer hooks recorded around state
// operations. The core never depends on a concrete telemetry backend: every
// hook is an interface method and the no-op recorder makes all of them safely
// skippable when telemetry is unconfigured.
package telemetry

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// Outcome labels describe how an operation was served.
const (
	OutcomePrimary  = "primary"  // served by the active backend
	OutcomeFallback = "fallback" // active backend failed, fallback satisfied the operation
	OutcomeError    = "error"    // no backend satisfied the operation
)

// Recorder receives operation and probe events from the selector. All methods
// must be cheap and non-blocking - they are called on the request hot path.
type Recorder interface {
	// RecordOp records one completed state operation: its name (get, set,
	// delete), the backend that served it, the outcome label and the
	// duration of the whole operation including any fallback attempt.
	RecordOp(op, backend, outcome string, d time.Duration)
	// RecordProbe records one reachability probe result for a backend.
	RecordProbe(backend string, success bool)
	// RecordDemotion records the active backend being demoted to the
	// fallback.
	RecordDemotion(backend string)
}

// --------------------------------------------------------------------------
// No-op Recorder
// --------------------------------------------------------------------------

// NoopRecorder discards all events with zero overhead.
type NoopRecorder struct{}

func (NoopRecorder) RecordOp(op, backend, outcome string, d time.Duration) {}
func (NoopRecorder) RecordProbe(backend string, success bool)              {}
func (NoopRecorder) RecordDemotion(backend string)                         {}

// --------------------------------------------------------------------------
// VictoriaMetrics Recorder
// --------------------------------------------------------------------------

// MetricsRecorder records events into the process-wide VictoriaMetrics
// registry, exposed in Prometheus text format via WritePrometheus.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a Recorder backed by VictoriaMetrics counters
// and summaries.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

func (r *MetricsRecorder) RecordOp(op, backend, outcome string, d time.Duration) {
	metrics.GetOrCreateCounter(fmt.Sprintf(
		`sidekv_state_ops_total{op=%q,backend=%q,outcome=%q}`, op, backend, outcome,
	)).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(
		`sidekv_state_op_duration_seconds{op=%q,backend=%q}`, op, backend,
	)).Update(d.Seconds())
}

func (r *MetricsRecorder) RecordProbe(backend string, success bool) {
	metrics.GetOrCreateCounter(fmt.Sprintf(
		`sidekv_probes_total{backend=%q,success="%t"}`, backend, success,
	)).Inc()
}

func (r *MetricsRecorder) RecordDemotion(backend string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(
		`sidekv_backend_demotions_total{backend=%q}`, backend,
	)).Inc()
}

// WritePrometheus writes all recorded metrics in Prometheus text exposition
// format, including process metrics.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
