package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}

	m.SessionFinished("completed", true)
	m.SessionFinished("error", false)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsFinished.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsFinished.WithLabelValues("error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsStarted); got != 2 {
		t.Errorf("started = %v, want 2", got)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CaptionCaptured()
	m.CaptionCaptured()
	m.ExitSignal("alone_text")
	m.PersistFailed()
	m.HeartbeatFailed()

	if got := testutil.ToFloat64(m.CaptionsCaptured); got != 2 {
		t.Errorf("captions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ExitSignals.WithLabelValues("alone_text")); got != 1 {
		t.Errorf("alone_text = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PersistFailures); got != 1 {
		t.Errorf("persist failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HeartbeatFailures); got != 1 {
		t.Errorf("heartbeat failures = %v, want 1", got)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionStarted()
	m.SessionFinished("completed", true)
	m.CaptionCaptured()
	m.ExitSignal("call_ended")
	m.PersistFailed()
	m.HeartbeatFailed()
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected panic registering metrics twice on one registry")
		}
	}()
	New(reg)
}
