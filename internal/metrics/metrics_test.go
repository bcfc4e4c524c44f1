package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"drowsy/internal/metrics"
	"drowsy/internal/session"
)

var _ session.Metrics = (*metrics.Metrics)(nil)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("scrape status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestCountersExported(t *testing.T) {
	m := metrics.New()
	m.PollCompleted(20*time.Millisecond, nil)
	m.PollCompleted(30*time.Millisecond, nil)
	m.PollCompleted(time.Second, errors.New("boom"))
	m.PollsSkipped(3)
	m.SessionStarted()
	m.StartFailed("camera_denied")
	m.StartFailed("")
	m.SessionEnded(session.EndStopped, time.Minute)
	m.AlertnessChanged(session.AlertnessAlert)

	body := scrape(t, m)
	wants := []string{
		"drowsy_polls_completed_total 2",
		"drowsy_poll_errors_total 1",
		"drowsy_polls_skipped_total 3",
		"drowsy_poll_latency_seconds_count 3",
		"drowsy_sessions_started_total 1",
		`drowsy_session_start_failures_total{reason="camera_denied"} 1`,
		`drowsy_session_start_failures_total{reason="unknown"} 1`,
		`drowsy_sessions_ended_total{reason="stopped"} 1`,
		"drowsy_session_active_seconds_count 1",
		`drowsy_alertness_changes_total{to="alert"} 1`,
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestStateGaugesFollowSnapshot(t *testing.T) {
	m := metrics.New()
	body := scrape(t, m)
	if !strings.Contains(body, "drowsy_session_active 0") {
		t.Fatalf("expected inactive gauge without snapshot source:\n%s", body)
	}

	snap := session.Snapshot{State: session.StateActive, Alertness: session.AlertnessAlert, Score: 41}
	m.BindSnapshot(func() session.Snapshot { return snap })
	body = scrape(t, m)
	for _, want := range []string{"drowsy_session_active 1", "drowsy_alertness_score 41", "drowsy_drowsiness_alert 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}

	m.BindSnapshot(nil)
	if body := scrape(t, m); !strings.Contains(body, "drowsy_alertness_score 0") {
		t.Fatalf("expected score reset after unbind")
	}
}
