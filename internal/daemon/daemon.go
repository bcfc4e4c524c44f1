package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"drowsy/internal/camera"
	"drowsy/internal/config"
	"drowsy/internal/history"
	"drowsy/internal/logging"
	"drowsy/internal/metrics"
	"drowsy/internal/notifications"
	"drowsy/internal/session"
)

// Dependencies are the collaborators the daemon wires into its controller.
// History, Notifier and Metrics are optional.
type Dependencies struct {
	Camera   session.Camera
	Service  session.Service
	History  *history.Store
	Notifier notifications.Service
	Metrics  *metrics.Metrics
}

// Daemon owns the session controller and its outer surfaces and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	controller *session.Controller
	history    *history.Store
	metrics    *metrics.Metrics
	notifier   notifications.Service
	logPath    string

	lockPath string
	lock     *flock.Flock

	api         *apiServer
	monitor     *netlinkMonitor
	broadcaster *broadcaster

	mu          sync.Mutex
	running     atomic.Bool
	cancel      context.CancelFunc
	unsubscribe func()
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	Session        session.Snapshot
	CameraDevice   string
	ServiceURL     string
	HistoryPath    string
	LogPath        string
	LockFilePath   string
	APIBind        string
	WatchingDevice bool
	Subscribers    int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil || deps.Camera == nil || deps.Service == nil {
		return nil, errors.New("daemon requires config, camera, and detection service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(cfg)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	idleScore := cfg.Session.IdleScore
	opts := session.Options{
		PollInterval: cfg.PollInterval(),
		IdleScore:    &idleScore,
		StopTimeout:  cfg.StopTimeout(),
		Logger:       logging.NewComponentLogger(logger, "session"),
		Notifier:     deps.Notifier,
		Metrics:      deps.Metrics,
	}
	// A nil *history.Store must not reach the interface.
	if deps.History != nil {
		opts.Recorder = deps.History
	}
	controller := session.New(deps.Camera, deps.Service, opts)
	deps.Metrics.BindSnapshot(controller.Snapshot)

	lockPath := filepath.Join(cfg.Paths.StateDir, "drowsy.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		controller:  controller,
		history:     deps.History,
		metrics:     deps.Metrics,
		notifier:    deps.Notifier,
		logPath:     cfg.LogPath(),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
		broadcaster: newBroadcaster(logger, defaultMaxStreamClients),
	}
	d.api = newAPIServer(cfg, d, logger)
	d.monitor = newNetlinkMonitor(cfg, logger, d.handleDeviceRemoved)
	return d, nil
}

// Start acquires the daemon lock and brings up the API server and device watch.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another drowsy daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.history != nil {
		if n, err := d.history.MarkInterrupted(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "failed to close stale sessions", "history_mark_interrupted_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "previous sessions may show as active"),
				logging.String(logging.FieldErrorHint, "check the history database at "+d.history.Path()),
			)
		} else if n > 0 {
			d.logger.Info("closed sessions left active by previous run",
				logging.Int64("count", n),
				logging.String(logging.FieldEventType, "history_sessions_interrupted"),
			)
		}
	}

	updates, unsubscribe := d.controller.Subscribe(1)
	go d.broadcaster.run(updates)

	if err := d.api.start(runCtx); err != nil {
		unsubscribe()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "device monitor failed to start", "device_monitor_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "camera removal is noticed only when the next poll or start fails"),
			logging.String(logging.FieldErrorHint, "check netlink permissions or set camera.watch_udev = false"),
		)
	}

	d.cancel = cancel
	d.unsubscribe = unsubscribe
	d.running.Store(true)
	d.logger.Info("drowsy daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldDevice, d.cfg.Camera.Device),
		logging.String("service", d.cfg.Service.BaseURL),
	)
	return nil
}

// Stop ends any session, stops the surfaces and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}

	d.controller.StopWithReason(session.EndClosed)
	d.monitor.Stop()
	d.api.stop()
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	d.broadcaster.closeAll()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a new daemon may refuse to start while the lock file is held"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no drowsy daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("drowsy daemon stopped")
}

// Close releases resources held by the daemon, including the camera.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.controller.Close(); err != nil {
		errs = append(errs, err)
	}
	d.metrics.BindSnapshot(nil)
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartSession requests a detection session and returns the resulting snapshot.
func (d *Daemon) StartSession(ctx context.Context) (session.Snapshot, error) {
	err := d.controller.Start(ctx)
	return d.controller.Snapshot(), err
}

// StopSession ends the current session, if any.
func (d *Daemon) StopSession() session.Snapshot {
	d.controller.Stop()
	return d.controller.Snapshot()
}

// Snapshot returns the live session state.
func (d *Daemon) Snapshot() session.Snapshot {
	return d.controller.Snapshot()
}

// History returns recent sessions, newest first.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.SessionRecord, error) {
	if d.history == nil {
		return nil, errors.New("session history unavailable")
	}
	return d.history.Recent(ctx, limit)
}

// SessionDetail returns one historical session and its alertness changes.
// A missing session returns nil without error.
func (d *Daemon) SessionDetail(ctx context.Context, id string) (*history.SessionRecord, []history.AlertnessEvent, error) {
	if d.history == nil {
		return nil, nil, errors.New("session history unavailable")
	}
	rec, err := d.history.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, nil, err
	}
	events, err := d.history.Events(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, events, nil
}

// PruneHistory deletes finished sessions started before the cutoff.
func (d *Daemon) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	if d.history == nil {
		return 0, errors.New("session history unavailable")
	}
	removed, err := d.history.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		d.logger.Info("session history pruned",
			logging.String(logging.FieldEventType, "history_pruned"),
			logging.Int64("removed_count", removed),
			logging.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return removed, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Metrics returns the daemon's metrics collectors.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	st := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Session:        d.controller.Snapshot(),
		CameraDevice:   d.cfg.Camera.Device,
		ServiceURL:     d.cfg.Service.BaseURL,
		LogPath:        d.LogPath(),
		LockFilePath:   d.lockPath,
		APIBind:        d.api.address(),
		WatchingDevice: d.monitor.Running(),
		Subscribers:    d.broadcaster.count(),
	}
	if d.history != nil {
		st.HistoryPath = d.history.Path()
	}
	return st
}

// handleDeviceRemoved ends the session when the camera disappears.
func (d *Daemon) handleDeviceRemoved(device string) {
	snap := d.controller.Snapshot()
	if !snap.State.HoldsCamera() {
		d.logger.Debug("camera removed while idle", logging.String(logging.FieldDevice, device))
		return
	}
	logging.WarnWithContext(logging.WithSession(d.logger, snap.SessionID), "camera removed during session", "camera_removed",
		logging.String(logging.FieldDevice, device),
		logging.String(logging.FieldImpact, "detection session stopped"),
		logging.String(logging.FieldErrorHint, "reconnect the camera and start a new session"),
	)
	d.controller.StopWithReason(session.EndDeviceRemoved)
}

// NewCamera selects the capture device named in config.
func NewCamera(cfg *config.Config, logger *slog.Logger) session.Camera {
	device := strings.TrimSpace(cfg.Camera.Device)
	if device == camera.VirtualDevice {
		return camera.NewVirtual()
	}
	return camera.NewDevice(device, cfg.LockDir(), logging.NewComponentLogger(logger, "camera"))
}
