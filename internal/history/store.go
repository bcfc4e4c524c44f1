package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"drowsy/internal/session"
)

// Outcome values stored in sessions.outcome.
const (
	OutcomeActive      = "active"
	OutcomeFailed      = "failed"
	OutcomeEnded       = "ended"
	OutcomeInterrupted = "interrupted"
)

// SessionRecord is one persisted session row.
type SessionRecord struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Outcome      string     `json:"outcome"`
	EndReason    string     `json:"end_reason,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Duration     int64      `json:"duration_ms"`
	AlertCount   int        `json:"alert_count"`
	LastScore    *float64   `json:"last_score,omitempty"`
}

// AlertnessEvent is one persisted alertness change.
type AlertnessEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	RawStatus string    `json:"raw_status,omitempty"`
	Score     float64   `json:"score"`
}

// Store manages session history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record persists a controller event.
func (s *Store) Record(ctx context.Context, evt session.Event) error {
	if evt.SessionID == "" {
		return errors.New("history: event without session id")
	}
	at := formatTime(evt.At)

	switch evt.Kind {
	case session.EventStarted:
		started := evt.Snapshot.StartedAt
		if started.IsZero() {
			started = evt.At
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, outcome, last_score) VALUES (?, ?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			evt.SessionID, formatTime(started), OutcomeActive, evt.Snapshot.Score,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil

	case session.EventFailed:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, ended_at, outcome, error_message) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET ended_at = excluded.ended_at, outcome = excluded.outcome,
             error_message = excluded.error_message`,
			evt.SessionID, at, at, OutcomeFailed, nullableString(evt.Snapshot.Error),
		)
		if err != nil {
			return fmt.Errorf("record failed session: %w", err)
		}
		return nil

	case session.EventAlertness:
		return s.recordAlertness(ctx, evt, at)

	case session.EventEnded:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, ended_at, outcome, end_reason, duration_ms) VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET ended_at = excluded.ended_at, outcome = excluded.outcome,
             end_reason = excluded.end_reason, duration_ms = excluded.duration_ms`,
			evt.SessionID, at, at, OutcomeEnded, nullableString(string(evt.Reason)), evt.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("record session end: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("history: unknown event kind %q", evt.Kind)
	}
}

func (s *Store) recordAlertness(ctx context.Context, evt session.Event, at string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alertness tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	to := evt.Snapshot.Alertness
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO alertness_events (session_id, at, from_state, to_state, raw_status, score) VALUES (?, ?, ?, ?, ?, ?)`,
		evt.SessionID, at, evt.Prior.String(), to.String(), nullableString(evt.Snapshot.RawStatus), evt.Snapshot.Score,
	); err != nil {
		return fmt.Errorf("insert alertness event: %w", err)
	}

	increment := 0
	if to == session.AlertnessAlert {
		increment = 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET alert_count = alert_count + ?, last_score = ? WHERE id = ?`,
		increment, evt.Snapshot.Score, evt.SessionID,
	); err != nil {
		return fmt.Errorf("update session counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alertness event: %w", err)
	}
	return nil
}

// Get fetches one session by id. A missing session returns nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Events returns the alertness changes recorded for a session in order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]AlertnessEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, at, from_state, to_state, raw_status, score
         FROM alertness_events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query alertness events: %w", err)
	}
	defer rows.Close()

	var out []AlertnessEvent
	for rows.Next() {
		var (
			evt AlertnessEvent
			at  string
			raw sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evt.SessionID, &at, &evt.From, &evt.To, &raw, &evt.Score); err != nil {
			return nil, fmt.Errorf("scan alertness event: %w", err)
		}
		evt.At, _ = parseTime(at)
		evt.RawStatus = raw.String
		out = append(out, evt)
	}
	return out, rows.Err()
}

// MarkInterrupted closes sessions left active by a previous process.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET outcome = ?, ended_at = ? WHERE outcome = ? AND ended_at IS NULL`,
		OutcomeInterrupted, formatTime(time.Now()), OutcomeActive,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted sessions: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished sessions that started before cutoff. Their events
// cascade. Active sessions are kept.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ? AND outcome <> ?`, formatTime(cutoff), OutcomeActive)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
