package async

import (
	"sync"
	"time"
)

// DefaultDebounce is the window used for search-as-you-type interactions.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces rapid calls into one trailing-edge invocation. Each
// call bumps a generation counter; the callback receives the generation it
// was scheduled with, so a response arriving after a newer call was issued
// can be recognized as stale and discarded via Current.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	timer  *time.Timer
	gen    uint64
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{window: window}
}

// Call schedules fn after the window, replacing any pending call. Only the
// latest queued fn ever runs.
func (d *Debouncer) Call(fn func(gen uint64)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		if !d.Current(gen) {
			return
		}
		fn(gen)
	})
}

// Current reports whether gen is still the newest generation. Callers use it
// to drop responses that arrive after a newer request was issued.
func (d *Debouncer) Current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

// Cancel drops any pending call and invalidates all outstanding generations.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
