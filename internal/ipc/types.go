package ipc

import "drowsy/internal/api"

// Session mirrors the HTTP API session DTO for IPC callers.
type Session = api.Session

// SessionRecord mirrors the HTTP API history DTO.
type SessionRecord = api.SessionRecord

// AlertnessEvent mirrors the HTTP API alertness change DTO.
type AlertnessEvent = api.AlertnessEvent

// StartRequest asks the daemon to begin a detection session.
type StartRequest struct{}

// StartResponse reports the session state after the start attempt.
// Message carries the user-facing reason when Started is false.
type StartResponse struct {
	Started bool    `json:"started"`
	Message string  `json:"message"`
	Session Session `json:"session"`
}

// StopRequest ends the current detection session.
type StopRequest struct{}

// StopResponse reports the session state after stopping.
type StopResponse struct {
	Stopped bool    `json:"stopped"`
	Session Session `json:"session"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and session status.
type StatusResponse = api.DaemonStatus

// HistoryRequest lists recent sessions. Zero Limit uses the store default.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains recent sessions, newest first.
type HistoryResponse struct {
	Sessions []SessionRecord `json:"sessions"`
}

// SessionDetailRequest fetches one session by id.
type SessionDetailRequest struct {
	ID string `json:"id"`
}

// SessionDetailResponse contains a session and its alertness changes.
type SessionDetailResponse struct {
	Session SessionRecord    `json:"session"`
	Events  []AlertnessEvent `json:"events"`
}

// PruneRequest removes finished sessions older than the given age.
type PruneRequest struct {
	OlderThanSeconds int64 `json:"older_than_seconds"`
}

// PruneResponse reports how many sessions were removed.
type PruneResponse struct {
	Removed int64 `json:"removed"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification delivery status.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
