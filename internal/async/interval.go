// Package async provides cancellable timer primitives: a start/stop interval
// handle and a trailing-edge debouncer. Components own these handles and must
// stop them on teardown so no callback fires after the owner is gone.
package async

import (
	"sync"
	"time"
)

// Interval repeatedly runs a function on a fixed period. Start replaces any
// previous schedule for the same handle; Stop is idempotent and guarantees no
// further invocations once it returns.
type Interval struct {
	mu     sync.Mutex
	period time.Duration
	fn     func()
	stop   chan struct{}
}

// NewInterval creates an interval handle. The function is not scheduled until
// Start is called.
func NewInterval(period time.Duration, fn func()) *Interval {
	return &Interval{period: period, fn: fn}
}

// Start begins firing. A running schedule is stopped first, so at most one
// loop is ever active per handle.
func (i *Interval) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopLocked()
	stop := make(chan struct{})
	i.stop = stop

	go func() {
		ticker := time.NewTicker(i.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// Re-check under the lock so a Stop that raced the tick wins.
				i.mu.Lock()
				stopped := i.stop != stop
				i.mu.Unlock()
				if stopped {
					return
				}
				i.fn()
			}
		}
	}()
}

// Stop cancels the schedule. Safe to call repeatedly or without Start.
func (i *Interval) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopLocked()
}

// Running reports whether the interval is currently scheduled.
func (i *Interval) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stop != nil
}

func (i *Interval) stopLocked() {
	if i.stop != nil {
		close(i.stop)
		i.stop = nil
	}
}
