// Package metrics holds the Prometheus collectors for links, telemetry and
// playback.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "magarm"

// Outcome label values for PlaybackRuns.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Result label values for TelemetryLines.
const (
	ResultAccepted  = "accepted"
	ResultDiscarded = "discarded"
)

// Metrics groups every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	LinesSent      *prometheus.CounterVec
	TelemetryLines *prometheus.CounterVec
	MirroredPoses  prometheus.Counter
	PlaybackSteps  prometheus.Counter
	PlaybackRuns   *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_sent_total",
			Help:      "Lines written to a serial link.",
		}, []string{"link"}),
		TelemetryLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_lines_total",
			Help:      "Lines read from the input device, by parse result.",
		}, []string{"result"}),
		MirroredPoses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirrored_poses_total",
			Help:      "Telemetry poses forwarded to the arm while teleop was on.",
		}),
		PlaybackSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_steps_total",
			Help:      "Sequence steps transmitted during playback.",
		}),
		PlaybackRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_runs_total",
			Help:      "Finished playback runs, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.LinesSent,
		m.TelemetryLines,
		m.MirroredPoses,
		m.PlaybackSteps,
		m.PlaybackRuns,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
