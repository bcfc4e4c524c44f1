package main

import (
	"strings"
	"testing"

	"drowsy/internal/api"
)

func TestHumanizeStatus(t *testing.T) {
	tests := map[string]string{
		"":        "-",
		"no_face": "No Face",
		"drowsy":  "Drowsy",
		" alert ": "Alert",
		"no_eyes": "No Eyes",
	}
	for input, want := range tests {
		if got := humanizeStatus(input); got != want {
			t.Errorf("humanizeStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRenderStatusLineWithoutColor(t *testing.T) {
	line := renderStatusLine("Camera", statusWarn, "not a character device", false)
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected ANSI codes in %q", line)
	}
	if !strings.Contains(line, "Camera") || !strings.Contains(line, "not a character device") {
		t.Fatalf("line missing label or message: %q", line)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	cases := map[string]statusKind{
		"ok":    statusOK,
		"warn":  statusWarn,
		"error": statusError,
		"info":  statusInfo,
		"":      statusInfo,
	}
	for severity, want := range cases {
		if got := statusKindFromSeverity(severity); got != want {
			t.Errorf("statusKindFromSeverity(%q) = %v, want %v", severity, got, want)
		}
	}
}

func TestSessionRows(t *testing.T) {
	score := 41.6
	rows := sessionRows([]api.SessionRecord{
		{
			ID:         "abc",
			StartedAt:  "2026-03-01T08:00:00.000Z",
			Outcome:    "ended",
			EndReason:  "stopped",
			DurationMS: 95_400,
			AlertCount: 2,
			LastScore:  &score,
		},
		{
			ID:           "def",
			StartedAt:    "garbage",
			Outcome:      "failed",
			ErrorMessage: "Camera device is unavailable.",
		},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first[0] != "abc" || first[2] != "Ended" || first[3] != "Stopped" || first[4] != "1m35s" || first[5] != "2" || first[6] != "42" {
		t.Fatalf("unexpected first row %v", first)
	}
	second := rows[1]
	if second[1] != "-" || second[3] != "Camera device is unavailable." || second[4] != "-" || second[6] != "-" {
		t.Fatalf("unexpected second row %v", second)
	}
}

func TestRenderSessionLines(t *testing.T) {
	lines := renderSessionLines(api.Session{
		SessionID:      "s1",
		State:          "active",
		Alertness:      "alert",
		AlertnessLabel: "Drowsiness detected",
		Score:          22,
		RawStatus:      "drowsy",
		Detecting:      true,
	}, false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"Active", "Drowsiness detected", "22", "Drowsy", "s1"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in\n%s", want, joined)
		}
	}
}
