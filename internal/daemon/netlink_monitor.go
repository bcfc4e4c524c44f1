package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"drowsy/internal/camera"
	"drowsy/internal/config"
	"drowsy/internal/logging"
)

// netlinkMonitor listens for udev netlink events and stops the session when
// the configured camera is unplugged.
type netlinkMonitor struct {
	logger  *slog.Logger
	handler func(device string)
	device  string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newNetlinkMonitor returns nil when watching is disabled or the camera is
// virtual.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler func(device string)) *netlinkMonitor {
	if cfg == nil || !cfg.Camera.WatchUdev {
		return nil
	}

	device := strings.TrimSpace(cfg.Camera.Device)
	if device == "" || device == camera.VirtualDevice {
		return nil
	}

	return &netlinkMonitor{
		logger:  logging.NewComponentLogger(logger, "netlink-monitor"),
		handler: handler,
		device:  device,
	}
}

// Start begins listening for udev netlink events.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; camera removal will not stop sessions", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "unplugged camera is only noticed on the next start"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.String(logging.FieldDevice, m.device),
	)
	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera removal may go unnoticed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION=remove.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	if !sameDevice(devname, m.device) {
		m.logger.Debug("ignoring event for non-configured device",
			logging.String(logging.FieldDevice, devname),
			logging.String("configured_device", m.device),
		)
		return
	}

	m.logger.Info("camera removal detected via netlink",
		logging.String(logging.FieldEventType, "netlink_camera_removed"),
		logging.String(logging.FieldDevice, devname),
	)
	if m.handler != nil {
		m.handler(devname)
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}

	// Fall back to DEVPATH, e.g. /devices/pci.../video4linux/video0
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}

// sameDevice compares paths after resolving symlinks such as /dev/v4l/by-id.
func sameDevice(a, b string) bool {
	if a == b {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA == nil && errB == nil {
		return ra == rb
	}
	// A removed node no longer resolves; compare against the configured target.
	if errB == nil {
		return a == rb
	}
	return false
}
