package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"drowsy/internal/api"
	"drowsy/internal/config"
	"drowsy/internal/history"
	"drowsy/internal/ipc"
	"drowsy/internal/preflight"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached drowsy daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon", "run"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}

	proc := exec.Command(executablePath, args...)
	// Detach from the CLI's session so terminal signals do not reach the daemon.
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	state := StartStateAlreadyRunning
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		state = StartStateStarted
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return StartResult{}, fmt.Errorf("query daemon status: %w", err)
	}
	return StartResult{State: state, PID: status.PID}, nil
}

// WaitForShutdown waits for daemon IPC to disappear.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// ReadPID returns the pid recorded by a running daemon, or 0 when the file
// is missing.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %q", pidPath)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// StopAndTerminate sends SIGTERM to the daemon and SIGKILLs it if IPC is
// still reachable after gracePeriod. The daemon ends any running session on
// SIGTERM.
func StopAndTerminate(socketPath, pidPath string, gracePeriod time.Duration) (StopResult, error) {
	alive, pid, err := ProcessInfo(socketPath)
	if err != nil && !alive {
		return StopResult{}, err
	}
	if !alive {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		if pid, err = ReadPID(pidPath); err != nil {
			return StopResult{}, err
		}
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			cleanup(socketPath, pidPath)
			return result, nil
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	cleanup(socketPath, pidPath)
	result.ForcedKill = true
	return result, nil
}

func cleanup(socketPath, pidPath string) {
	_ = os.Remove(socketPath)
	_ = os.Remove(pidPath)
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// StatusLine is one labelled row in the status report.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// StatusSnapshot is what "drowsy status" renders.
type StatusSnapshot struct {
	Daemon  api.DaemonStatus
	Checks  []StatusLine
	Recent  []api.SessionRecord
	Offline bool
}

const recentSessionsShown = 5

// BuildStatusSnapshot collects daemon status and falls back to config checks
// and the history database when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &StatusSnapshot{Offline: true}

	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snap.Daemon = *resp
			snap.Offline = false
		}
		if hist, histErr := client.History(recentSessionsShown); histErr == nil && hist != nil {
			snap.Recent = hist.Sessions
		}
	}

	if snap.Offline {
		snap.Daemon.CameraDevice = cfg.Camera.Device
		snap.Daemon.ServiceURL = cfg.Service.BaseURL
		snap.Daemon.HistoryPath = cfg.HistoryPath()
		snap.Daemon.LogPath = cfg.LogPath()
		snap.Recent = offlineHistory(ctx, cfg.HistoryPath())
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap.Checks = BuildSystemChecks(checkCtx, cfg, snap.Daemon)
	return snap, nil
}

// offlineHistory reads recent sessions without creating a database that does
// not exist yet.
func offlineHistory(ctx context.Context, path string) []api.SessionRecord {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	store, err := history.Open(path)
	if err != nil {
		return nil
	}
	defer store.Close()
	records, err := store.Recent(ctx, recentSessionsShown)
	if err != nil {
		return nil
	}
	return api.FromRecords(records)
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status api.DaemonStatus) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if status.Running {
		lines = append(lines, StatusLine{Label: "Drowsy", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		lines = append(lines, sessionLine(status.Session))
	} else {
		lines = append(lines, StatusLine{Label: "Drowsy", Severity: "warn", Detail: "Not running (run `drowsy daemon start`)"})
	}

	// The daemon may hold the camera lock; only check config when offline.
	if !status.Running {
		lines = append(lines, resultLine(preflight.CheckCamera(cfg.Camera.Device), "error"))
	} else {
		lines = append(lines, StatusLine{Label: "Camera", Severity: "ok", Detail: status.CameraDevice})
	}
	lines = append(lines, resultLine(preflight.CheckDetectionService(ctx, cfg), "warn"))

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}

	switch {
	case status.WatchingDevice:
		lines = append(lines, StatusLine{Label: "Camera Watch", Severity: "ok", Detail: "Netlink monitoring active"})
	case !status.Running:
		lines = append(lines, StatusLine{Label: "Camera Watch", Severity: "info", Detail: "Inactive (daemon not running)"})
	case !cfg.Camera.WatchUdev:
		lines = append(lines, StatusLine{Label: "Camera Watch", Severity: "info", Detail: "Disabled"})
	default:
		lines = append(lines, StatusLine{Label: "Camera Watch", Severity: "warn", Detail: "Netlink unavailable (removal noticed on next start)"})
	}
	return lines
}

func sessionLine(s api.Session) StatusLine {
	line := StatusLine{Label: "Session", Severity: "info", Detail: "Idle"}
	switch {
	case s.Error != "":
		line.Severity = "error"
		line.Detail = s.Error
	case s.Detecting && s.Alertness == "alert":
		line.Severity = "warn"
		line.Detail = fmt.Sprintf("%s (score %.0f)", s.AlertnessLabel, s.Score)
	case s.Detecting:
		line.Severity = "ok"
		line.Detail = fmt.Sprintf("%s (score %.0f)", s.AlertnessLabel, s.Score)
	case s.Busy:
		line.Detail = "Starting"
	}
	return line
}

func resultLine(r preflight.Result, failSeverity string) StatusLine {
	severity := failSeverity
	if r.Passed {
		severity = "ok"
	}
	return StatusLine{Label: r.Name, Severity: severity, Detail: r.Detail}
}
