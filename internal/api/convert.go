package api

import (
	"time"

	"drowsy/internal/history"
	"drowsy/internal/session"
)

// FromSnapshot converts a controller snapshot to its API representation.
func FromSnapshot(snap session.Snapshot) Session {
	return Session{
		SessionID:      snap.SessionID,
		State:          snap.State.String(),
		Alertness:      snap.Alertness.String(),
		AlertnessLabel: snap.Alertness.Label(),
		Score:          snap.Score,
		RawStatus:      snap.RawStatus,
		Error:          snap.Error,
		StartedAt:      formatTime(snap.StartedAt),
		UpdatedAt:      formatTime(snap.UpdatedAt),
		Detecting:      snap.State == session.StateActive,
		Busy:           snap.State == session.StateStarting || snap.State == session.StateStopping,
	}
}

// FromRecord converts a history row.
func FromRecord(rec history.SessionRecord) SessionRecord {
	dto := SessionRecord{
		ID:           rec.ID,
		StartedAt:    formatTime(rec.StartedAt),
		Outcome:      rec.Outcome,
		EndReason:    rec.EndReason,
		ErrorMessage: rec.ErrorMessage,
		DurationMS:   rec.Duration,
		AlertCount:   rec.AlertCount,
		LastScore:    rec.LastScore,
	}
	if rec.EndedAt != nil {
		dto.EndedAt = formatTime(*rec.EndedAt)
	}
	return dto
}

// FromRecords converts a slice of history rows, never returning nil.
func FromRecords(records []history.SessionRecord) []SessionRecord {
	out := make([]SessionRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromEvents converts recorded alertness changes, never returning nil.
func FromEvents(events []history.AlertnessEvent) []AlertnessEvent {
	out := make([]AlertnessEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, AlertnessEvent{
			At:        formatTime(evt.At),
			From:      evt.From,
			To:        evt.To,
			RawStatus: evt.RawStatus,
			Score:     evt.Score,
		})
	}
	return out
}

// ParseTime reads a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
