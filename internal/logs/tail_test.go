package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"drowsy/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drowsy.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	lines, pos, err := logs.Last(path, logs.Options{Lines: 2})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if pos != 6 {
		t.Fatalf("position = %d, want 6", pos)
	}

	lines, _, err = logs.Last(path, logs.Options{Lines: 10})
	if err != nil || len(lines) != 3 {
		t.Fatalf("Last(10) = %#v, %v", lines, err)
	}
}

func TestLastFiltersAndSkipsPartialLine(t *testing.T) {
	path := writeLog(t, "INFO session started\nWARN camera lost\nINFO session ended\nINFO partial")

	lines, pos, err := logs.Last(path, logs.Options{Lines: 5, Contains: "session"})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[1] != "INFO session ended" {
		t.Fatalf("unexpected lines: %#v", lines)
	}

	appendLog(t, path, " line\n")
	more, _, err := logs.Since(path, pos, logs.Options{})
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(more) != 1 || more[0] != "INFO partial line" {
		t.Fatalf("unexpected follow lines: %#v", more)
	}
}

func TestMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	lines, pos, err := logs.Last(path, logs.Options{Lines: 3})
	if err != nil || lines != nil || pos != 0 {
		t.Fatalf("Last on missing file = %#v, %d, %v", lines, pos, err)
	}
}

func TestSinceAfterTruncation(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\n")
	_, pos, err := logs.Last(path, logs.Options{Lines: 1})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if err := os.WriteFile(path, []byte("fresh\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	lines, _, err := logs.Since(path, pos, logs.Options{})
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(lines) != 1 || lines[0] != "fresh" {
		t.Fatalf("unexpected lines after truncation: %#v", lines)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, logs.Options{Lines: 1, PollInterval: 10 * time.Millisecond}, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	time.Sleep(50 * time.Millisecond)
	appendLog(t, path, "later\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "start" || got[1] != "later" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}
