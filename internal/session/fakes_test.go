package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"drowsy/internal/camera"
	"drowsy/internal/detection"
	"drowsy/internal/session"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeCamera struct {
	log        *callLog
	acquireErr error
	gate       chan struct{}
	onRelease  func()

	acquires atomic.Int32
	releases atomic.Int32
}

func (f *fakeCamera) Acquire(ctx context.Context) (*camera.Handle, error) {
	f.acquires.Add(1)
	if f.log != nil {
		f.log.add("camera.acquire")
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return camera.NewHandle("fake0", nil), nil
}

func (f *fakeCamera) Release(h *camera.Handle) {
	if h == nil || h.Released() {
		return
	}
	if f.onRelease != nil {
		f.onRelease()
	}
	_ = h.Release()
	f.releases.Add(1)
	if f.log != nil {
		f.log.add("camera.release")
	}
}

type fakeService struct {
	log       *callLog
	startErr  error
	startGate chan struct{}
	stopGate  chan struct{}
	statusFn  func(ctx context.Context, call int) (detection.Status, error)

	starts      atomic.Int32
	stops       atomic.Int32
	statusCalls atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeService) Start(ctx context.Context) error {
	f.starts.Add(1)
	if f.log != nil {
		f.log.add("service.start")
	}
	if f.startGate != nil {
		select {
		case <-f.startGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.startErr
}

func (f *fakeService) Stop(ctx context.Context) error {
	if f.stopGate != nil {
		select {
		case <-f.stopGate:
		case <-ctx.Done():
			f.stops.Add(1)
			return ctx.Err()
		}
	}
	f.stops.Add(1)
	if f.log != nil {
		f.log.add("service.stop")
	}
	return errors.New("stop is best effort")
}

func (f *fakeService) Status(ctx context.Context) (detection.Status, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	call := int(f.statusCalls.Add(1))
	if f.statusFn == nil {
		return detection.Status{}, errors.New("no status")
	}
	return f.statusFn(ctx, call)
}

// scripted returns statuses in order, then fails every later call.
func scripted(statuses ...detection.Status) func(context.Context, int) (detection.Status, error) {
	return func(_ context.Context, call int) (detection.Status, error) {
		if call <= len(statuses) {
			return statuses[call-1], nil
		}
		return detection.Status{}, errors.New("script exhausted")
	}
}

func newController(t *testing.T, cam *fakeCamera, svc *fakeService, opts session.Options) *session.Controller {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = time.Second
	}
	ctrl := session.New(cam, svc, opts)
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type recordingSink struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recordingSink) Record(_ context.Context, evt session.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSink) kinds() []session.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.EventKind, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Kind)
	}
	return out
}
