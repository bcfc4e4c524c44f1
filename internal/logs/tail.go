package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1024 * 1024

// Position marks where the next read resumes.
type Position int64

// Options selects which lines Read and Follow return.
type Options struct {
	// Lines limits the initial read to the newest N lines. Zero skips
	// straight to the end of the file.
	Lines int
	// Contains keeps only lines holding this substring.
	Contains string
	// PollInterval sets how often Follow checks for appended lines.
	PollInterval time.Duration
}

func (o Options) keep(line string) bool {
	return o.Contains == "" || strings.Contains(line, o.Contains)
}

// Last returns the newest opts.Lines matching lines and the end-of-file
// position. A missing file yields no lines and position zero.
func Last(path string, opts Options) ([]string, Position, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	if opts.Lines <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, Position(end), nil
	}

	ring := make([]string, opts.Lines)
	count, next := 0, 0
	end, err := scan(file, func(line string) {
		if !opts.keep(line) {
			return
		}
		ring[next] = line
		next = (next + 1) % opts.Lines
		count = min(count+1, opts.Lines)
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == opts.Lines {
		start = next
	}
	for i := range count {
		lines = append(lines, ring[(start+i)%opts.Lines])
	}
	return lines, end, nil
}

// Since returns matching lines written after pos. A file that shrank below
// pos was rotated or truncated and is reread from the start.
func Since(path string, pos Position, opts Options) ([]string, Position, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, pos, fmt.Errorf("stat log file: %w", err)
	}
	if int64(pos) > info.Size() || pos < 0 {
		pos = 0
	}
	if _, err := file.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, pos, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	end, err := scan(file, func(line string) {
		if opts.keep(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return nil, pos, err
	}
	return lines, pos + end, nil
}

// Follow prints the newest lines and then every appended line through emit
// until ctx is cancelled.
func Follow(ctx context.Context, path string, opts Options, emit func(string)) error {
	lines, pos, err := Last(path, opts)
	if err != nil {
		return err
	}
	for _, line := range lines {
		emit(line)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, pos, err = Since(path, pos, opts)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
	}
}

func open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

// scan feeds complete lines to fn and returns the bytes consumed. A trailing
// partial line is left for the next read.
func scan(r io.Reader, fn func(string)) (Position, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed Position
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += Position(len(line))
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
