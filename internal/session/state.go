package session

import (
	"fmt"
	"time"
)

// State is the controller lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
	StateError
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateStarting: "starting",
	StateActive:   "active",
	StateStopping: "stopping",
	StateError:    "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// HoldsCamera reports whether a camera handle is held in this state.
func (s State) HoldsCamera() bool {
	return s == StateStarting || s == StateActive || s == StateStopping
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Alertness is the three-way driver classification shown to the user.
type Alertness int

const (
	AlertnessMonitoring Alertness = iota
	AlertnessAlert
	AlertnessNormal
)

var alertnessNames = map[Alertness]string{
	AlertnessMonitoring: "monitoring",
	AlertnessAlert:      "alert",
	AlertnessNormal:     "normal",
}

func (a Alertness) String() string {
	if name, ok := alertnessNames[a]; ok {
		return name
	}
	return fmt.Sprintf("alertness(%d)", int(a))
}

// Label is the user-facing caption for the indicator.
func (a Alertness) Label() string {
	switch a {
	case AlertnessAlert:
		return "Drowsiness detected"
	case AlertnessNormal:
		return "Driver alert"
	default:
		return "Monitoring"
	}
}

func (a Alertness) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Alertness) UnmarshalText(text []byte) error {
	for value, name := range alertnessNames {
		if name == string(text) {
			*a = value
			return nil
		}
	}
	return fmt.Errorf("unknown alertness %q", text)
}

// Snapshot is an immutable view of controller state for the presentation layer.
type Snapshot struct {
	SessionID string    `json:"session_id,omitempty"`
	State     State     `json:"state"`
	Alertness Alertness `json:"alertness"`
	Score     float64   `json:"score"`
	Error     string    `json:"error,omitempty"`
	RawStatus string    `json:"raw_status,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EndReason records why a session left Active.
type EndReason string

const (
	EndStopped       EndReason = "stopped"
	EndAborted       EndReason = "aborted"
	EndClosed        EndReason = "closed"
	EndDeviceRemoved EndReason = "device_removed"
)

// EventKind classifies controller events delivered to collaborators.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventFailed    EventKind = "failed"
	EventAlertness EventKind = "alertness"
	EventEnded     EventKind = "ended"
)

// Event describes one lifecycle or alertness change.
type Event struct {
	Kind      EventKind
	SessionID string
	At        time.Time
	Snapshot  Snapshot
	// Prior is the alertness before an EventAlertness change.
	Prior  Alertness
	Reason EndReason
	// Duration is the Active time for EventEnded.
	Duration time.Duration
}
