package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"drowsy/internal/logging"
	"drowsy/internal/services"
)

// Device acquires a V4L2 capture node such as /dev/video0. Exclusive use
// across processes is enforced with a lock file in lockDir.
type Device struct {
	path    string
	lockDir string
	logger  *slog.Logger
}

// NewDevice constructs a device-backed camera. An empty lockDir disables
// cross-process locking.
func NewDevice(path, lockDir string, logger *slog.Logger) *Device {
	return &Device{
		path:    path,
		lockDir: lockDir,
		logger:  logging.NewComponentLogger(logger, "camera"),
	}
}

// Path returns the configured device node.
func (d *Device) Path() string {
	return d.path
}

// Acquire opens the capture device and returns a live handle.
func (d *Device) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(d.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(ErrDeviceUnavailable, "camera", "acquire", "device "+d.path+" not found", err)
		}
		return nil, services.Wrap(classify(err), "camera", "acquire", "stat "+d.path, err)
	}

	if err := unix.Access(d.path, unix.R_OK|unix.W_OK); err != nil {
		return nil, services.Wrap(ErrPermissionDenied, "camera", "acquire", "access "+d.path, err)
	}

	var lock *flock.Flock
	if d.lockDir != "" {
		if err := os.MkdirAll(d.lockDir, 0o755); err != nil {
			return nil, fmt.Errorf("camera: ensure lock dir: %w", err)
		}
		lock = flock.New(filepath.Join(d.lockDir, lockName(d.path)))
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("camera: acquire lock: %w", err)
		}
		if !ok {
			return nil, services.Wrap(ErrDeviceUnavailable, "camera", "acquire", "device "+d.path+" is in use by another session", nil)
		}
	}

	file, err := os.OpenFile(d.path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, services.Wrap(classify(err), "camera", "acquire", "open "+d.path, err)
	}

	d.logger.Debug("camera stream opened", logging.String(logging.FieldDevice, d.path))

	return NewHandle(d.path, func() error {
		closeErr := file.Close()
		if lock != nil {
			if err := lock.Unlock(); err != nil && closeErr == nil {
				closeErr = fmt.Errorf("camera: release lock: %w", err)
			}
		}
		d.logger.Debug("camera stream closed", logging.String(logging.FieldDevice, d.path))
		return closeErr
	}), nil
}

// Release stops the handle's stream. Nil and already released handles are ignored.
func (d *Device) Release(h *Handle) {
	if h == nil {
		return
	}
	if err := h.Release(); err != nil {
		logging.WarnWithContext(d.logger, "camera release reported an error", "camera_release_failed",
			logging.String(logging.FieldDevice, h.Device()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "device handle may linger until process exit"),
		)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	default:
		return ErrDeviceUnavailable
	}
}

func lockName(devicePath string) string {
	base := strings.TrimPrefix(filepath.Clean(devicePath), string(filepath.Separator))
	base = strings.ReplaceAll(base, string(filepath.Separator), "_")
	return "camera-" + base + ".lock"
}
