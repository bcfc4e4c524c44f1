package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"drowsy/internal/config"
	"drowsy/internal/daemon"
	"drowsy/internal/detection"
	"drowsy/internal/history"
	"drowsy/internal/ipc"
	"drowsy/internal/logging"
	"drowsy/internal/metrics"
	"drowsy/internal/notifications"
	"drowsy/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// SocketPath overrides the IPC socket location from config.
	SocketPath  string
	LogLevel    string
	Development bool
}

// PIDPath returns the pid file location for cfg.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "drowsy.pid")
}

// Run starts the drowsy daemon runtime loop and blocks until a signal or
// context cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logReadiness(signalCtx, logger, cfg)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Camera:   daemon.NewCamera(cfg, logger),
		Service:  detection.NewFromConfig(cfg),
		History:  store,
		Notifier: notifications.NewService(cfg),
		Metrics:  metrics.New(),
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Written only once the instance lock is held.
	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("drowsy daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logReadiness records preflight results so a missing camera or unreachable
// service is visible before the first session attempt.
func logReadiness(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	attrs := make([]logging.Attr, 0, len(results)+1)
	attrs = append(attrs, logging.String(logging.FieldEventType, "readiness_snapshot"))
	for _, r := range results {
		attrs = append(attrs, logging.Bool(r.Name, r.Passed))
	}
	logger.Info("readiness snapshot", logging.Args(attrs...)...)

	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(logger, r.Name+" not ready", "readiness_check_failed",
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "sessions may fail to start"),
			logging.String(logging.FieldErrorHint, "run drowsy doctor for details"),
		)
	}
}
