// Package metrics provides Prometheus metrics for external dependencies of factlens
// (yt-dlp, ffmpeg, ffprobe and provider fallbacks).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dependency execution metrics
var (
	// commandExecutionTotal records the total number of dependency command executions.
	// Labels:
	//   - command: Command name (e.g., "yt-dlp", "ffmpeg")
	//   - mode: Execution mode (e.g., "local")
	//   - status: Execution status (e.g., "success", "failed", "timeout")
	commandExecutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_command_executions_total",
			Help: "Total number of dependency command executions",
		},
		[]string{"command", "mode", "status"},
	)

	// commandExecutionDuration records the duration of dependency command executions.
	// Buckets: 0.1s .. 15 minutes (long yt-dlp downloads)
	commandExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dependency_command_duration_seconds",
			Help:    "Duration of dependency command executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"command", "mode"},
	)

	// degradationEventsTotal records switches between a primary and a fallback implementation.
	// Labels:
	//   - from: implementation switched away from (e.g., "openai:gpt-4o-transcribe")
	//   - to: implementation switched to
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_degradation_events_total",
			Help: "Total number of degradation events between primary and fallback implementations",
		},
		[]string{"from", "to"},
	)
)

func init() {
	prometheus.MustRegister(commandExecutionTotal)
	prometheus.MustRegister(commandExecutionDuration)
	prometheus.MustRegister(degradationEventsTotal)
}

// RecordCommandExecution records a command execution event.
func RecordCommandExecution(command, mode, status string) {
	commandExecutionTotal.WithLabelValues(command, mode, status).Inc()
}

// RecordCommandDuration records the duration of a command execution in seconds.
func RecordCommandDuration(command, mode string, durationSeconds float64) {
	commandExecutionDuration.WithLabelValues(command, mode).Observe(durationSeconds)
}

// RecordDegradationEvent records a switch from one implementation to another.
func RecordDegradationEvent(from, to string) {
	degradationEventsTotal.WithLabelValues(from, to).Inc()
}
