package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = `id, started_at, ended_at, outcome, end_reason, error_message, duration_ms, alert_count, last_score`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*SessionRecord, error) {
	var (
		rec       SessionRecord
		started   string
		ended     sql.NullString
		reason    sql.NullString
		errMsg    sql.NullString
		lastScore sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &started, &ended, &rec.Outcome, &reason, &errMsg, &rec.Duration, &rec.AlertCount, &lastScore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	var err error
	if rec.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	if ended.Valid {
		if t, err := parseTime(ended.String); err == nil {
			rec.EndedAt = &t
		}
	}
	rec.EndReason = reason.String
	rec.ErrorMessage = errMsg.String
	if lastScore.Valid {
		v := lastScore.Float64
		rec.LastScore = &v
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
