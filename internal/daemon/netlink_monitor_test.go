package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"drowsy/internal/config"
)

func monitorConfig(device string) *config.Config {
	cfg := config.Default()
	cfg.Camera.Device = device
	cfg.Camera.WatchUdev = true
	return &cfg
}

func TestNewNetlinkMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("watch disabled returns nil", func(t *testing.T) {
		cfg := monitorConfig("/dev/video0")
		cfg.Camera.WatchUdev = false
		if m := newNetlinkMonitor(cfg, nil, nil); m != nil {
			t.Error("expected nil monitor when watch_udev is false")
		}
	})

	t.Run("virtual camera returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(monitorConfig("virtual"), nil, nil); m != nil {
			t.Error("expected nil monitor for virtual camera")
		}
	})

	t.Run("valid config creates monitor", func(t *testing.T) {
		m := newNetlinkMonitor(monitorConfig("/dev/video0"), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if m.device != "/dev/video0" {
			t.Errorf("expected device /dev/video0, got %s", m.device)
		}
	})
}

func TestNetlinkMonitorStopStartIdempotency(t *testing.T) {
	t.Run("nil monitor is safe", func(t *testing.T) {
		var m *netlinkMonitor
		m.Stop()
		if m.Running() {
			t.Error("expected Running() false for nil monitor")
		}
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
	})

	t.Run("double stop on unstarted monitor is safe", func(t *testing.T) {
		m := newNetlinkMonitor(monitorConfig("/dev/video0"), nil, nil)
		m.Stop()
		m.Stop()
		if m.Running() {
			t.Error("expected Running() false after Stop")
		}
	})

	t.Run("start without privileges is non-fatal", func(t *testing.T) {
		m := newNetlinkMonitor(monitorConfig("/dev/video0"), nil, nil)
		if err := m.Start(t.Context()); err != nil {
			t.Fatalf("Start returned %v", err)
		}
		m.Stop()
	})
}

func TestBuildMatcher(t *testing.T) {
	m := newNetlinkMonitor(monitorConfig("/dev/video0"), nil, nil)
	matcher := m.buildMatcher()

	remove := netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "/dev/video0"},
	}
	if !matcher.Evaluate(remove) {
		t.Error("expected matcher to accept video4linux remove")
	}

	add := netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "/dev/video0"},
	}
	if matcher.Evaluate(add) {
		t.Error("expected matcher to reject ADD action")
	}

	block := netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "block", "DEVNAME": "/dev/sr0"},
	}
	if matcher.Evaluate(block) {
		t.Error("expected matcher to reject block subsystem")
	}
}

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		called bool
	}{
		{name: "no device name", env: map[string]string{}, called: false},
		{name: "other device", env: map[string]string{"DEVNAME": "/dev/video2"}, called: false},
		{name: "configured device", env: map[string]string{"DEVNAME": "/dev/video0"}, called: true},
		{name: "relative devname", env: map[string]string{"DEVNAME": "video0"}, called: true},
		{name: "devpath fallback", env: map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/video4linux/video0"}, called: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			m := newNetlinkMonitor(monitorConfig("/dev/video0"), nil, func(device string) { got = device })
			m.handleEvent(netlink.UEvent{Action: netlink.REMOVE, Env: tc.env})
			if called := got != ""; called != tc.called {
				t.Fatalf("handler called = %v, want %v", called, tc.called)
			}
			if tc.called && got != "/dev/video0" {
				t.Fatalf("handler device = %q", got)
			}
		})
	}
}

func TestSameDeviceResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "video0")
	if err := os.WriteFile(target, nil, 0o600); err != nil {
		t.Fatalf("write target: %v", err)
	}
	link := filepath.Join(dir, "by-id-cam")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if !sameDevice(target, link) {
		t.Error("expected symlink to match its target")
	}
	if sameDevice(filepath.Join(dir, "video1"), link) {
		t.Error("unexpected match for a different node")
	}
}
