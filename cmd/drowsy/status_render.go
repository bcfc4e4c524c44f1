package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"drowsy/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn", "warning":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// humanizeStatus turns raw service labels such as "no_face" into "No Face".
func humanizeStatus(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "-"
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(raw, "_", " "))
}

// sessionKind picks the status colour for a live session.
func sessionKind(s api.Session) statusKind {
	switch {
	case s.Error != "":
		return statusError
	case s.Detecting && s.Alertness == "alert":
		return statusWarn
	case s.Detecting:
		return statusOK
	default:
		return statusInfo
	}
}

// renderSessionLines describes the live session the way the status panel does.
func renderSessionLines(s api.Session, colorize bool) []string {
	kind := sessionKind(s)
	lines := []string{
		renderStatusLine("State", kind, humanizeStatus(s.State), colorize),
	}
	if s.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, s.Error, colorize))
	}
	lines = append(lines,
		renderStatusLine("Alertness", kind, s.AlertnessLabel, colorize),
		renderStatusLine("Score", kind, fmt.Sprintf("%.0f", s.Score), colorize),
	)
	if s.Detecting {
		lines = append(lines, renderStatusLine("Raw status", statusInfo, humanizeStatus(s.RawStatus), colorize))
	}
	if s.SessionID != "" {
		lines = append(lines, renderStatusLine("Session", statusInfo, s.SessionID, colorize))
	}
	return lines
}

func sessionRows(records []api.SessionRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		score := "-"
		if rec.LastScore != nil {
			score = fmt.Sprintf("%.0f", *rec.LastScore)
		}
		rows = append(rows, []string{
			rec.ID,
			formatDisplayTime(rec.StartedAt),
			humanizeStatus(rec.Outcome),
			reasonOrError(rec),
			formatDurationMS(rec.DurationMS),
			fmt.Sprintf("%d", rec.AlertCount),
			score,
		})
	}
	return rows
}

func reasonOrError(rec api.SessionRecord) string {
	if rec.ErrorMessage != "" {
		return rec.ErrorMessage
	}
	if rec.EndReason != "" {
		return humanizeStatus(rec.EndReason)
	}
	return "-"
}

func formatDisplayTime(value string) string {
	t, ok := api.ParseTime(value)
	if !ok {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDurationMS(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
