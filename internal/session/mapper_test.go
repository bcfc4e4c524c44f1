package session_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"drowsy/internal/camera"
	"drowsy/internal/detection"
	"drowsy/internal/session"
)

func TestMap(t *testing.T) {
	tests := []struct {
		prior session.Alertness
		raw   detection.Status
		want  session.Alertness
	}{
		{session.AlertnessMonitoring, detection.Status{Status: "drowsy", Score: 40}, session.AlertnessAlert},
		{session.AlertnessMonitoring, detection.Status{Status: "alert", Score: 95}, session.AlertnessNormal},
		{session.AlertnessAlert, detection.Status{Status: "no_face", Score: 0}, session.AlertnessMonitoring},
		{session.AlertnessNormal, detection.Status{Status: "no_eyes", Score: 3}, session.AlertnessMonitoring},
		{session.AlertnessAlert, detection.Status{Status: "unknown", Score: 10}, session.AlertnessAlert},
		{session.AlertnessNormal, detection.Status{Status: "", Score: 10}, session.AlertnessNormal},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s_from_%s", tc.raw.Status, tc.prior), func(t *testing.T) {
			if got := session.Map(tc.prior, tc.raw); got != tc.want {
				t.Fatalf("Map(%s, %q) = %s, want %s", tc.prior, tc.raw.Status, got, tc.want)
			}
		})
	}
	if session.KnownStatus("sleepy") {
		t.Fatal("unexpected known status")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", camera.ErrPermissionDenied), session.MessageCameraDenied},
		{camera.ErrDeviceUnavailable, session.MessageCameraUnavailable},
		{fmt.Errorf("x: %w", detection.ErrConnectionRefused), session.MessageUnreachable},
		{&detection.RejectedError{StatusCode: 503, Message: "Model not loaded"}, "Model not loaded"},
		{&detection.RejectedError{StatusCode: 500}, session.MessageStartFailed},
		{errors.New("other"), session.MessageStartFailed},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := session.UserMessage(tc.err); got != tc.want {
			t.Fatalf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestSnapshotJSONUsesNames(t *testing.T) {
	snap := session.Snapshot{State: session.StateActive, Alertness: session.AlertnessAlert, Score: 40}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["state"] != "active" || decoded["alertness"] != "alert" {
		t.Fatalf("unexpected encoding: %s", data)
	}
	if _, ok := decoded["started_at"]; ok {
		t.Fatalf("zero started_at should be omitted: %s", data)
	}

	var back session.Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if back.State != session.StateActive || back.Alertness != session.AlertnessAlert {
		t.Fatalf("unexpected decoded snapshot: %+v", back)
	}
	if err := json.Unmarshal([]byte(`{"state":"bogus"}`), &back); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
