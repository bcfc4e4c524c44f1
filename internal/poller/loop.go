// Package poller runs a repeating fetch with at most one call in flight.
//
// A tick that fires while the previous fetch is still outstanding is skipped
// rather than queued, so a slow service applies natural backpressure instead
// of accumulating overlapping requests.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FetchFunc performs one poll. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// TickFunc receives each completed poll in call order.
type TickFunc[T any] func(value T, err error)

// Stats counts loop activity.
type Stats struct {
	Completed uint64
	Skipped   uint64
}

// Loop is a running poll loop. The zero value is not usable; call Start.
type Loop[T any] struct {
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	completed atomic.Uint64
	skipped   atomic.Uint64
	inFlight  atomic.Bool
}

type result[T any] struct {
	value T
	err   error
}

// Start launches a loop that calls fetch every interval, starting one interval
// from now. onTick runs on the loop goroutine and must not call Stop.
func Start[T any](ctx context.Context, interval time.Duration, fetch FetchFunc[T], onTick TickFunc[T]) *Loop[T] {
	ctx, cancel := context.WithCancel(ctx)
	l := &Loop[T]{cancel: cancel, done: make(chan struct{})}
	go l.run(ctx, interval, fetch, onTick)
	return l
}

func (l *Loop[T]) run(ctx context.Context, interval time.Duration, fetch FetchFunc[T], onTick TickFunc[T]) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	results := make(chan result[T], 1)
	var fetches sync.WaitGroup
	defer fetches.Wait()

	busy := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if busy {
				l.skipped.Add(1)
				continue
			}
			busy = true
			l.inFlight.Store(true)
			fetches.Add(1)
			go func() {
				defer fetches.Done()
				value, err := fetch(ctx)
				results <- result[T]{value: value, err: err}
			}()
		case res := <-results:
			busy = false
			l.inFlight.Store(false)
			if ctx.Err() != nil {
				return
			}
			l.completed.Add(1)
			if onTick != nil {
				onTick(res.value, res.err)
			}
		}
	}
}

// Stop cancels the timer and any in-flight fetch, then waits for the loop to
// exit. No onTick call happens after Stop returns. Stop is idempotent.
func (l *Loop[T]) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(l.cancel)
	<-l.done
}

// Done is closed once the loop has exited.
func (l *Loop[T]) Done() <-chan struct{} {
	return l.done
}

// InFlight reports whether a fetch is outstanding.
func (l *Loop[T]) InFlight() bool {
	return l.inFlight.Load()
}

// Stats returns a copy of the loop counters.
func (l *Loop[T]) Stats() Stats {
	return Stats{Completed: l.completed.Load(), Skipped: l.skipped.Load()}
}
