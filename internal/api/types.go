package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes the live detection session in a transport-friendly format.
type Session struct {
	SessionID      string  `json:"sessionId,omitempty"`
	State          string  `json:"state"`
	Alertness      string  `json:"alertness"`
	AlertnessLabel string  `json:"alertnessLabel"`
	Score          float64 `json:"score"`
	RawStatus      string  `json:"rawStatus,omitempty"`
	Error          string  `json:"error,omitempty"`
	StartedAt      string  `json:"startedAt,omitempty"`
	UpdatedAt      string  `json:"updatedAt,omitempty"`
	// Detecting is true while the session is active.
	Detecting bool `json:"detecting"`
	// Busy is true while a start or stop is in progress.
	Busy bool `json:"busy"`
}

// SessionResponse wraps the live session for API responses.
type SessionResponse struct {
	Session Session `json:"session"`
}

// ErrorResponse carries a user-facing failure along with the session state.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Session *Session `json:"session,omitempty"`
}

// StreamMessage is one WebSocket frame on the session event stream.
type StreamMessage struct {
	Type    string  `json:"type"`
	Session Session `json:"session"`
}

// Stream message types.
const (
	MessageSnapshot = "snapshot"
	MessageUpdate   = "update"
)

// SessionRecord describes a historical session.
type SessionRecord struct {
	ID           string   `json:"id"`
	StartedAt    string   `json:"startedAt"`
	EndedAt      string   `json:"endedAt,omitempty"`
	Outcome      string   `json:"outcome"`
	EndReason    string   `json:"endReason,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	DurationMS   int64    `json:"durationMs"`
	AlertCount   int      `json:"alertCount"`
	LastScore    *float64 `json:"lastScore,omitempty"`
}

// AlertnessEvent describes one recorded alertness change.
type AlertnessEvent struct {
	At        string  `json:"at"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	RawStatus string  `json:"rawStatus,omitempty"`
	Score     float64 `json:"score"`
}

// SessionListResponse wraps recent session history.
type SessionListResponse struct {
	Sessions []SessionRecord `json:"sessions"`
}

// SessionDetailResponse wraps one historical session and its changes.
type SessionDetailResponse struct {
	Session SessionRecord    `json:"session"`
	Events  []AlertnessEvent `json:"events"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool    `json:"running"`
	PID            int     `json:"pid"`
	Session        Session `json:"session"`
	CameraDevice   string  `json:"cameraDevice"`
	ServiceURL     string  `json:"serviceUrl"`
	HistoryPath    string  `json:"historyPath,omitempty"`
	LogPath        string  `json:"logPath,omitempty"`
	LockFilePath   string  `json:"lockFilePath"`
	APIBind        string  `json:"apiBind,omitempty"`
	WatchingDevice bool    `json:"watchingDevice"`
	Subscribers    int     `json:"subscribers"`
}
