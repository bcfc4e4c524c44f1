package logging_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"drowsy/internal/config"
	"drowsy/internal/logging"
	"drowsy/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestJSONLoggerWritesStructuredRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.WithSession(logging.NewComponentLogger(logger, "session"), "abc123")
	logger.Info("session started", logging.Float64("score", 0))
	logger.Debug("hidden")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), data)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "session started" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if record[logging.FieldComponent] != "session" || record[logging.FieldSessionID] != "abc123" {
		t.Fatalf("missing component/session fields: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key: %v", record)
	}
}

func TestConsoleLoggerOrdersHighlightedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "poller")
	logging.WarnWithContext(logger, "status poll failed", "poll_failed",
		logging.String("extra", "x"),
		logging.Error(errors.New("connection refused")),
	)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "WARN [poller] - status poll failed") {
		t.Fatalf("unexpected header: %q", out)
	}
	eventIdx := strings.Index(out, "event_type: poll_failed")
	extraIdx := strings.Index(out, "extra: x")
	if eventIdx < 0 || extraIdx < 0 || eventIdx > extraIdx {
		t.Fatalf("expected event_type before extra fields: %q", out)
	}
	if !strings.Contains(out, "impact:") || !strings.Contains(out, "error_hint:") {
		t.Fatalf("expected injected warning fields: %q", out)
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")

	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "drowsy.log")); err != nil {
		t.Fatalf("expected log file: %v", err)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(t.Context(), 100) {
		t.Fatal("nop logger should never be enabled")
	}
	logging.ErrorWithContext(nil, "ignored", "none")
}

func TestContextFieldsIncludeSessionAndRequest(t *testing.T) {
	ctx := services.WithRequestID(services.WithSessionID(t.Context(), "sess"), "req")
	fields := logging.ContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("expected two fields, got %v", fields)
	}
	if fields[0].Key != logging.FieldSessionID || fields[1].Key != logging.FieldCorrelationID {
		t.Fatalf("unexpected field keys: %v", fields)
	}
	if logging.WithContext(t.Context(), nil) == nil {
		t.Fatal("expected fallback logger")
	}
}
