package api

import (
	"testing"
	"time"

	"drowsy/internal/history"
	"drowsy/internal/session"
)

func TestFromSnapshotDerivesFlags(t *testing.T) {
	started := time.Date(2026, 5, 2, 8, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	dto := FromSnapshot(session.Snapshot{
		SessionID: "abc",
		State:     session.StateActive,
		Alertness: session.AlertnessAlert,
		Score:     38.5,
		RawStatus: "drowsy",
		StartedAt: started,
	})
	if !dto.Detecting || dto.Busy {
		t.Fatalf("unexpected flags detecting=%v busy=%v", dto.Detecting, dto.Busy)
	}
	if dto.State != "active" || dto.Alertness != "alert" || dto.AlertnessLabel != "Drowsiness detected" {
		t.Fatalf("unexpected names %+v", dto)
	}
	if dto.StartedAt != "2026-05-02T06:30:00.000Z" {
		t.Fatalf("startedAt = %q", dto.StartedAt)
	}
	if dto.UpdatedAt != "" {
		t.Fatalf("zero updatedAt should be empty, got %q", dto.UpdatedAt)
	}
	if parsed, ok := ParseTime(dto.StartedAt); !ok || !parsed.Equal(started) {
		t.Fatalf("ParseTime round trip failed: %v %v", parsed, ok)
	}

	starting := FromSnapshot(session.Snapshot{State: session.StateStarting})
	if !starting.Busy || starting.Detecting {
		t.Fatalf("starting should be busy: %+v", starting)
	}
	if starting.AlertnessLabel != "Monitoring" {
		t.Fatalf("idle label = %q", starting.AlertnessLabel)
	}
}

func TestFromRecordsNeverNil(t *testing.T) {
	if got := FromRecords(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
	if got := FromEvents(nil); got == nil {
		t.Fatal("expected empty events slice")
	}

	ended := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	score := 41.0
	dto := FromRecord(history.SessionRecord{
		ID:         "s1",
		StartedAt:  ended.Add(-time.Minute),
		EndedAt:    &ended,
		Outcome:    history.OutcomeEnded,
		EndReason:  "stopped",
		Duration:   60000,
		AlertCount: 2,
		LastScore:  &score,
	})
	if dto.EndedAt != "2026-01-01T10:00:00.000Z" || dto.DurationMS != 60000 || dto.AlertCount != 2 {
		t.Fatalf("unexpected record %+v", dto)
	}
	if dto.LastScore == nil || *dto.LastScore != 41 {
		t.Fatalf("unexpected last score %v", dto.LastScore)
	}
}
