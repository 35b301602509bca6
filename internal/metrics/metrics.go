// Package metrics holds the Prometheus instruments for bot sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every meetbot instrument. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsFinished  *prometheus.CounterVec
	CaptionsCaptured  prometheus.Counter
	ExitSignals       *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	HeartbeatFailures prometheus.Counter
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetbot_active_sessions",
			Help: "Sessions currently in a meeting",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_sessions_started_total",
			Help: "Sessions that reached in_progress",
		}),
		SessionsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbot_sessions_finished_total",
				Help: "Sessions that reached a terminal state",
			},
			[]string{"status"},
		),
		CaptionsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_captions_captured_total",
			Help: "Non-empty caption samples appended to transcripts",
		}),
		ExitSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbot_exit_signals_total",
				Help: "Exit-detection signals that fired",
			},
			[]string{"signal"},
		),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_persist_failures_total",
			Help: "Transcript snapshot writes that failed",
		}),
		HeartbeatFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetbot_heartbeat_failures_total",
			Help: "Heartbeats that found the browser or page unresponsive",
		}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionFinished records a terminal transition. wasActive is true when the
// session had reached in_progress.
func (m *Metrics) SessionFinished(status string, wasActive bool) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(status).Inc()
	if wasActive {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) CaptionCaptured() {
	if m == nil {
		return
	}
	m.CaptionsCaptured.Inc()
}

func (m *Metrics) ExitSignal(kind string) {
	if m == nil {
		return
	}
	m.ExitSignals.WithLabelValues(kind).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) HeartbeatFailed() {
	if m == nil {
		return
	}
	m.HeartbeatFailures.Inc()
}
