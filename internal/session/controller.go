package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"drowsy/internal/camera"
	"drowsy/internal/detection"
	"drowsy/internal/logging"
	"drowsy/internal/poller"
	"drowsy/internal/services"
)

const (
	DefaultPollInterval         = time.Second
	DefaultIdleScore    float64 = 87
	DefaultStopTimeout          = 3 * time.Second

	eventBuffer = 64
)

// Camera acquires and releases the capture device.
type Camera interface {
	Acquire(ctx context.Context) (*camera.Handle, error)
	Release(h *camera.Handle)
}

// Service is the detection service request layer.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (detection.Status, error)
}

// Recorder persists lifecycle and alertness events.
type Recorder interface {
	Record(ctx context.Context, evt Event) error
}

// Notifier pushes events to the user outside the presentation layer.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Metrics receives controller counters.
type Metrics interface {
	PollCompleted(latency time.Duration, err error)
	PollsSkipped(n uint64)
	SessionStarted()
	StartFailed(reason string)
	SessionEnded(reason EndReason, active time.Duration)
	AlertnessChanged(to Alertness)
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	PollInterval time.Duration
	// IdleScore is shown while no session runs; nil selects DefaultIdleScore.
	IdleScore    *float64
	StopTimeout  time.Duration
	Logger       *slog.Logger
	Recorder     Recorder
	Notifier     Notifier
	Metrics      Metrics
	Clock        func() time.Time
	NewID        func() string
}

// Controller owns one detection session at a time: the camera handle, the
// start/stop protocol with the service, and the status polling loop.
//
// All transitions happen under mu; camera and network I/O run outside it.
type Controller struct {
	cam          Camera
	svc          Service
	logger       *slog.Logger
	recorder     Recorder
	notifier     Notifier
	metrics      Metrics
	now          func() time.Time
	newID        func() string
	pollInterval time.Duration
	idleScore    float64
	stopTimeout  time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	state       State
	alertness   Alertness
	score       float64
	errMsg      string
	rawStatus   string
	sessionID   string
	startedAt   time.Time
	updatedAt   time.Time
	gen         uint64
	handle      *camera.Handle
	loop        *poller.Loop[detection.Status]
	abort       bool
	abortReason EndReason
	closed      bool
	pendingStop chan struct{}
	subs        map[int]chan Snapshot
	nextSub     int
	events      chan Event
	eventsShut  bool

	// transitions counts in-progress Start and teardown calls; remote stops
	// are only added while a transition is running.
	transitions  sync.WaitGroup
	remoteStops  sync.WaitGroup
	dispatchDone chan struct{}
}

// New constructs a controller in the Idle state.
func New(cam Camera, svc Service, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	idleScore := DefaultIdleScore
	if opts.IdleScore != nil {
		idleScore = *opts.IdleScore
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cam:          cam,
		svc:          svc,
		logger:       logging.NewComponentLogger(opts.Logger, "session"),
		recorder:     opts.Recorder,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		now:          opts.Clock,
		newID:        opts.NewID,
		pollInterval: opts.PollInterval,
		idleScore:    idleScore,
		stopTimeout:  opts.StopTimeout,
		baseCtx:      ctx,
		baseCancel:   cancel,
		state:        StateIdle,
		alertness:    AlertnessMonitoring,
		score:        idleScore,
		subs:         make(map[int]chan Snapshot),
		events:       make(chan Event, eventBuffer),
		dispatchDone: make(chan struct{}),
	}
	c.updatedAt = c.now()
	go c.dispatch()
	return c
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start begins a session. Calls while a session is starting, active, or
// stopping are ignored and return nil. A failed start leaves the controller
// in StateError with a user-facing message and returns the cause.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateStarting, StateActive, StateStopping:
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("start ignored", logging.String(logging.FieldPhase, state.String()))
		return nil
	}
	c.gen++
	sessionID := c.newID()
	c.state = StateStarting
	c.sessionID = sessionID
	c.errMsg = ""
	c.rawStatus = ""
	c.abort = false
	c.abortReason = ""
	c.updatedAt = c.now()
	pending := c.pendingStop
	c.transitions.Add(1)
	c.publishLocked()
	c.mu.Unlock()
	defer c.transitions.Done()

	logger := logging.WithSession(c.logger, sessionID)
	ctx = services.WithSessionID(ctx, sessionID)
	logger.Info("session starting", logging.String(logging.FieldEventType, "session_starting"))

	handle, camErr, svcErr := c.acquireAndStart(ctx, pending)
	failed := camErr != nil || svcErr != nil

	// Unwind any partial success before Error becomes observable.
	if failed && handle != nil {
		c.cam.Release(handle)
		handle = nil
	}

	c.mu.Lock()
	if c.abort || c.closed {
		c.mu.Unlock()
		c.finishAborted(sessionID, handle, svcErr == nil)
		return ErrAborted
	}

	if failed {
		err := camErr
		if err == nil {
			err = svcErr
		}
		c.state = StateError
		c.errMsg = UserMessage(err)
		c.updatedAt = c.now()
		c.emitLocked(Event{Kind: EventFailed, SessionID: sessionID})
		c.publishLocked()
		message := c.errMsg
		c.mu.Unlock()

		c.metrics.StartFailed(failureReason(camErr, svcErr))
		logging.WarnWithContext(logger, "session start failed", "session_start_failed",
			logging.Error(err),
			logging.String("message", message),
			logging.String(logging.FieldErrorHint, startHint(camErr, svcErr)),
			logging.String(logging.FieldImpact, "detection is not running"),
		)
		return err
	}

	gen := c.gen
	now := c.now()
	c.handle = handle
	c.state = StateActive
	c.score = 0
	c.alertness = AlertnessMonitoring
	c.startedAt = now
	c.updatedAt = now
	c.loop = poller.Start(c.baseCtx, c.pollInterval, c.fetchStatus, func(st detection.Status, err error) {
		c.handleTick(gen, st, err)
	})
	c.emitLocked(Event{Kind: EventStarted, SessionID: sessionID})
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.SessionStarted()
	logger.Info("session active",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String(logging.FieldDevice, handle.Device()),
		logging.Duration("poll_interval", c.pollInterval),
	)
	return nil
}

// acquireAndStart issues camera acquisition and the service start
// concurrently and waits for both. The service start waits for any
// outstanding remote stop first so the service never sees them reordered.
func (c *Controller) acquireAndStart(ctx context.Context, pending <-chan struct{}) (*camera.Handle, error, error) {
	var (
		wg     sync.WaitGroup
		handle *camera.Handle
		camErr error
		svcErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		handle, camErr = c.cam.Acquire(ctx)
	}()
	go func() {
		defer wg.Done()
		if pending != nil {
			select {
			case <-pending:
			case <-ctx.Done():
				svcErr = ctx.Err()
				return
			}
		}
		svcErr = c.svc.Start(ctx)
	}()
	wg.Wait()
	if camErr != nil {
		handle = nil
	}
	return handle, camErr, svcErr
}

// finishAborted unwinds a start interrupted by Stop or Close.
func (c *Controller) finishAborted(sessionID string, handle *camera.Handle, serviceStarted bool) {
	if handle != nil {
		c.cam.Release(handle)
	}

	c.mu.Lock()
	reason := c.abortReason
	if reason == "" {
		reason = EndClosed
	}
	// A plain stop during start is recorded as aborted; shutdown and device
	// removal keep their own reason.
	recorded := reason
	if reason == EndStopped {
		recorded = EndAborted
	}
	if serviceStarted {
		c.startRemoteStopLocked(sessionID)
	}
	c.resetIdleLocked()
	c.emitLocked(Event{Kind: EventEnded, SessionID: sessionID, Reason: recorded})
	c.publishLocked()
	c.mu.Unlock()

	logging.WithSession(c.logger, sessionID).Info("session start aborted",
		logging.String(logging.FieldEventType, "session_aborted"),
		logging.String("reason", string(reason)),
	)
}

// Stop ends the active session. It is a no-op when idle or in error; during
// a start it aborts the attempt. The remote stop request is not awaited.
func (c *Controller) Stop() {
	c.StopWithReason(EndStopped)
}

// StopWithReason is Stop with the reason recorded in history.
func (c *Controller) StopWithReason(reason EndReason) {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateError, StateStopping:
		c.mu.Unlock()
		return
	case StateStarting:
		c.abort = true
		c.abortReason = reason
		c.mu.Unlock()
		return
	}
	c.teardownActive(reason)
}

// teardownActive is called with mu held in StateActive and returns with mu released.
func (c *Controller) teardownActive(reason EndReason) {
	c.transitions.Add(1)
	defer c.transitions.Done()
	sessionID := c.sessionID
	active := c.now().Sub(c.startedAt)
	loop := c.loop
	handle := c.handle
	c.loop = nil
	c.handle = nil
	c.gen++
	c.state = StateStopping
	c.updatedAt = c.now()
	c.publishLocked()
	c.mu.Unlock()

	loop.Stop()
	c.metrics.PollsSkipped(loop.Stats().Skipped)

	c.mu.Lock()
	c.startRemoteStopLocked(sessionID)
	c.mu.Unlock()

	c.cam.Release(handle)

	c.mu.Lock()
	c.resetIdleLocked()
	c.emitLocked(Event{Kind: EventEnded, SessionID: sessionID, Reason: reason, Duration: active})
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.SessionEnded(reason, active)
	logging.WithSession(c.logger, sessionID).Info("session stopped",
		logging.String(logging.FieldEventType, "session_stopped"),
		logging.String("reason", string(reason)),
		logging.Duration("active", active),
	)
}

// Close tears the controller down from any state. The camera is released
// and outstanding remote stop requests settle before Close returns.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	switch c.state {
	case StateActive:
		c.teardownActive(EndClosed)
	case StateStarting:
		c.abort = true
		c.abortReason = EndClosed
		c.mu.Unlock()
	default:
		c.mu.Unlock()
	}

	c.transitions.Wait()
	c.remoteStops.Wait()
	c.baseCancel()

	c.mu.Lock()
	c.eventsShut = true
	close(c.events)
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
	<-c.dispatchDone
	return nil
}

// Subscribe returns a channel that receives a Snapshot after every change,
// starting with the current one. Slow subscribers see the latest snapshot
// rather than every intermediate one. The cancel func is idempotent.
func (c *Controller) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) fetchStatus(ctx context.Context) (detection.Status, error) {
	started := time.Now()
	st, err := c.svc.Status(ctx)
	if ctx.Err() == nil {
		c.metrics.PollCompleted(time.Since(started), err)
	}
	return st, err
}

func (c *Controller) handleTick(gen uint64, st detection.Status, err error) {
	if err != nil {
		c.logger.Debug("status poll failed", logging.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.gen != gen {
		return
	}
	if !KnownStatus(st.Status) {
		c.logger.Debug("unknown detection status ignored",
			logging.String("status", st.Status),
			logging.Float64("score", st.Score),
		)
	}
	prior := c.alertness
	c.alertness = Map(prior, st)
	c.score = st.Score
	c.rawStatus = st.Status
	c.updatedAt = c.now()
	if c.alertness != prior {
		c.metrics.AlertnessChanged(c.alertness)
		c.emitLocked(Event{Kind: EventAlertness, SessionID: c.sessionID, Prior: prior})
	}
	c.publishLocked()
}

// startRemoteStopLocked dispatches the best-effort service stop. A later
// Start waits on pendingStop before calling the service.
func (c *Controller) startRemoteStopLocked(sessionID string) {
	done := make(chan struct{})
	c.pendingStop = done
	c.remoteStops.Add(1)
	go func() {
		defer c.remoteStops.Done()
		defer close(done)
		ctx, cancel := context.WithTimeout(services.WithSessionID(context.Background(), sessionID), c.stopTimeout)
		defer cancel()
		if err := c.svc.Stop(ctx); err != nil {
			c.logger.Debug("remote stop failed",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
			)
		}
	}()
}

func (c *Controller) resetIdleLocked() {
	c.state = StateIdle
	c.alertness = AlertnessMonitoring
	c.score = c.idleScore
	c.rawStatus = ""
	c.sessionID = ""
	c.startedAt = time.Time{}
	c.updatedAt = c.now()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: c.sessionID,
		State:     c.state,
		Alertness: c.alertness,
		Score:     c.score,
		Error:     c.errMsg,
		RawStatus: c.rawStatus,
		StartedAt: c.startedAt,
		UpdatedAt: c.updatedAt,
	}
}

func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: replace the oldest pending snapshot with the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) emitLocked(evt Event) {
	if c.recorder == nil && c.notifier == nil {
		return
	}
	if c.eventsShut {
		return
	}
	evt.At = c.now()
	evt.Snapshot = c.snapshotLocked()
	select {
	case c.events <- evt:
	default:
		logging.WarnWithContext(c.logger, "session event dropped", "event_dropped",
			logging.String("kind", string(evt.Kind)),
			logging.String(logging.FieldImpact, "history or notification may miss this change"),
			logging.String(logging.FieldErrorHint, "check history database and ntfy latency"),
		)
	}
}

func (c *Controller) dispatch() {
	defer close(c.dispatchDone)
	for evt := range c.events {
		ctx := services.WithSessionID(context.Background(), evt.SessionID)
		if c.recorder != nil {
			if err := c.recorder.Record(ctx, evt); err != nil {
				logging.WarnWithContext(c.logger, "session history write failed", "history_write_failed",
					logging.String("kind", string(evt.Kind)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "session history is incomplete"),
				)
			}
		}
		if c.notifier != nil {
			if err := c.notifier.Notify(ctx, evt); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(c.logger, "notification failed", "notification_failed",
					logging.String("kind", string(evt.Kind)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "user was not notified"),
				)
			}
		}
	}
}

func failureReason(camErr, svcErr error) string {
	var rejected *detection.RejectedError
	switch {
	case errors.Is(camErr, camera.ErrPermissionDenied):
		return "camera_denied"
	case camErr != nil:
		return "camera_unavailable"
	case errors.Is(svcErr, detection.ErrConnectionRefused):
		return "service_unreachable"
	case errors.As(svcErr, &rejected):
		return "service_rejected"
	default:
		return "other"
	}
}

func startHint(camErr, svcErr error) string {
	switch {
	case errors.Is(camErr, camera.ErrPermissionDenied):
		return "grant the user read/write access to the video device (video group)"
	case camErr != nil:
		return "check that the camera is connected and not used by another process"
	case errors.Is(svcErr, detection.ErrConnectionRefused):
		return "start the detection service or fix service.base_url"
	default:
		return "inspect the detection service logs"
	}
}

type nopMetrics struct{}

func (nopMetrics) PollCompleted(time.Duration, error) {}

func (nopMetrics) PollsSkipped(uint64) {}

func (nopMetrics) SessionStarted() {}

func (nopMetrics) StartFailed(string) {}

func (nopMetrics) SessionEnded(EndReason, time.Duration) {}

func (nopMetrics) AlertnessChanged(Alertness) {}
