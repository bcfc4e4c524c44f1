package history_test

import (
	"path/filepath"
	"testing"
	"time"

	"drowsy/internal/history"
	"drowsy/internal/session"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapshot(id string, alertness session.Alertness, score float64, raw string) session.Snapshot {
	return session.Snapshot{SessionID: id, State: session.StateActive, Alertness: alertness, Score: score, RawStatus: raw}
}

func TestRecordSessionLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []session.Event{
		{Kind: session.EventStarted, SessionID: "s1", At: base, Snapshot: session.Snapshot{SessionID: "s1", State: session.StateActive, Score: 87, StartedAt: base}},
		{Kind: session.EventAlertness, SessionID: "s1", At: base.Add(time.Second), Prior: session.AlertnessMonitoring, Snapshot: snapshot("s1", session.AlertnessAlert, 40, "drowsy")},
		{Kind: session.EventAlertness, SessionID: "s1", At: base.Add(2 * time.Second), Prior: session.AlertnessAlert, Snapshot: snapshot("s1", session.AlertnessNormal, 92, "alert")},
		{Kind: session.EventAlertness, SessionID: "s1", At: base.Add(3 * time.Second), Prior: session.AlertnessNormal, Snapshot: snapshot("s1", session.AlertnessAlert, 35, "drowsy")},
		{Kind: session.EventEnded, SessionID: "s1", At: base.Add(4 * time.Second), Reason: session.EndStopped, Duration: 4 * time.Second},
	}
	for _, evt := range events {
		if err := store.Record(ctx, evt); err != nil {
			t.Fatalf("Record(%s): %v", evt.Kind, err)
		}
	}

	rec, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("expected session record")
	}
	if rec.Outcome != history.OutcomeEnded || rec.EndReason != "stopped" {
		t.Fatalf("unexpected outcome %q reason %q", rec.Outcome, rec.EndReason)
	}
	if rec.AlertCount != 2 {
		t.Fatalf("alert count = %d, want 2", rec.AlertCount)
	}
	if rec.Duration != 4000 {
		t.Fatalf("duration = %d, want 4000", rec.Duration)
	}
	if rec.LastScore == nil || *rec.LastScore != 35 {
		t.Fatalf("unexpected last score %v", rec.LastScore)
	}
	if !rec.StartedAt.Equal(base) {
		t.Fatalf("started_at = %v, want %v", rec.StartedAt, base)
	}
	if rec.EndedAt == nil || !rec.EndedAt.Equal(base.Add(4*time.Second)) {
		t.Fatalf("unexpected ended_at %v", rec.EndedAt)
	}

	changes, err := store.Events(ctx, "s1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 alertness events, got %d", len(changes))
	}
	if changes[0].From != "monitoring" || changes[0].To != "alert" || changes[0].RawStatus != "drowsy" {
		t.Fatalf("unexpected first change %+v", changes[0])
	}
	if changes[1].To != "normal" || changes[1].Score != 92 {
		t.Fatalf("unexpected second change %+v", changes[1])
	}
}

func TestRecordFailedAndAborted(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	failed := session.Event{
		Kind:      session.EventFailed,
		SessionID: "f1",
		At:        now,
		Snapshot:  session.Snapshot{SessionID: "f1", State: session.StateError, Error: session.MessageUnreachable},
	}
	if err := store.Record(ctx, failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	aborted := session.Event{Kind: session.EventEnded, SessionID: "a1", At: now.Add(time.Second), Reason: session.EndAborted}
	if err := store.Record(ctx, aborted); err != nil {
		t.Fatalf("Record aborted: %v", err)
	}

	rec, err := store.Get(ctx, "f1")
	if err != nil || rec == nil {
		t.Fatalf("Get f1: %v %v", rec, err)
	}
	if rec.Outcome != history.OutcomeFailed || rec.ErrorMessage != session.MessageUnreachable {
		t.Fatalf("unexpected failed record %+v", rec)
	}

	rec, err = store.Get(ctx, "a1")
	if err != nil || rec == nil {
		t.Fatalf("Get a1: %v %v", rec, err)
	}
	if rec.EndReason != "aborted" || rec.Duration != 0 {
		t.Fatalf("unexpected aborted record %+v", rec)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "a1" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
}

func TestGetMissingSession(t *testing.T) {
	store := openStore(t)
	rec, err := store.Get(t.Context(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	store := openStore(t)
	if err := store.Record(t.Context(), session.Event{Kind: "weird", SessionID: "x"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if err := store.Record(t.Context(), session.Event{Kind: session.EventStarted}); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestMarkInterruptedAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := t.Context()
	old := time.Now().Add(-48 * time.Hour).UTC()
	fresh := time.Now().UTC()

	for _, evt := range []session.Event{
		{Kind: session.EventStarted, SessionID: "old", At: old},
		{Kind: session.EventStarted, SessionID: "fresh", At: fresh},
	} {
		if err := store.Record(ctx, evt); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Record(ctx, session.Event{
		Kind: session.EventAlertness, SessionID: "old", At: old.Add(time.Second),
		Prior: session.AlertnessMonitoring, Snapshot: snapshot("old", session.AlertnessAlert, 20, "drowsy"),
	}); err != nil {
		t.Fatalf("Record alertness: %v", err)
	}

	n, err := store.MarkInterrupted(ctx)
	if err != nil {
		t.Fatalf("MarkInterrupted: %v", err)
	}
	if n != 2 {
		t.Fatalf("interrupted %d sessions, want 2", n)
	}
	rec, _ := store.Get(ctx, "fresh")
	if rec == nil || rec.Outcome != history.OutcomeInterrupted || rec.EndedAt == nil {
		t.Fatalf("unexpected interrupted record %+v", rec)
	}

	pruned, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned %d, want 1", pruned)
	}
	if rec, _ := store.Get(ctx, "old"); rec != nil {
		t.Fatalf("old session should be gone, got %+v", rec)
	}
	events, err := store.Events(ctx, "old")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected cascaded delete, got %d events", len(events))
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(t.Context(), session.Event{Kind: session.EventStarted, SessionID: "keep", At: time.Now()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.Get(t.Context(), "keep")
	if err != nil || rec == nil {
		t.Fatalf("expected persisted session, got %v %v", rec, err)
	}
}
