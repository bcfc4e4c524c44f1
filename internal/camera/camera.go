package camera

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied reports that the platform refused access to the capture device.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable reports that the capture device is missing, busy, or held elsewhere.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
)

// Handle is a revocable capability over an acquired capture stream. Release
// stops the stream; calling it more than once is safe.
type Handle struct {
	device     string
	acquiredAt time.Time

	once     sync.Once
	mu       sync.Mutex
	released bool
	closer   func() error
	err      error
}

// NewHandle wraps a live stream. closer runs exactly once on the first Release.
func NewHandle(device string, closer func() error) *Handle {
	return &Handle{device: device, acquiredAt: time.Now(), closer: closer}
}

// Device returns the device path the handle was acquired from.
func (h *Handle) Device() string {
	if h == nil {
		return ""
	}
	return h.device
}

// AcquiredAt returns when the stream became live.
func (h *Handle) AcquiredAt() time.Time {
	if h == nil {
		return time.Time{}
	}
	return h.acquiredAt
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release stops all tracks of the stream. It returns the closer's error from
// the first call; later calls return the same value without side effects.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		var err error
		if h.closer != nil {
			err = h.closer()
		}
		h.mu.Lock()
		h.released = true
		h.err = err
		h.mu.Unlock()
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
