package camera

import (
	"context"
	"sync/atomic"
)

// VirtualDevice is the configured device name that selects Virtual.
const VirtualDevice = "virtual"

// Virtual is an in-process camera for demos against the mock detection
// service. Acquire always succeeds unless the context is done.
type Virtual struct {
	live atomic.Int64
}

// NewVirtual constructs a virtual camera.
func NewVirtual() *Virtual {
	return &Virtual{}
}

func (v *Virtual) Acquire(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.live.Add(1)
	return NewHandle(VirtualDevice, func() error {
		v.live.Add(-1)
		return nil
	}), nil
}

func (v *Virtual) Release(h *Handle) {
	_ = h.Release()
}

// Live returns the number of handles not yet released.
func (v *Virtual) Live() int64 {
	return v.live.Load()
}
