package async

import (
	"sync"
	"testing"
	"time"
)

func TestDebouncer_OnlyLatestCallFires(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var mu sync.Mutex
	var calls []string

	// "a", "ab", "abc" typed within the window: exactly one call, for "abc".
	for _, q := range []string{"a", "ab", "abc"} {
		query := q
		d.Call(func(uint64) {
			mu.Lock()
			calls = append(calls, query)
			mu.Unlock()
		})
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("got %d calls %v, want exactly 1", len(calls), calls)
	}
	if calls[0] != "abc" {
		t.Errorf("fired for %q, want %q", calls[0], "abc")
	}
}

func TestDebouncer_StaleGenerationDetected(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	fired := make(chan uint64, 1)
	d.Call(func(gen uint64) {
		fired <- gen
	})

	var gen uint64
	select {
	case gen = <-fired:
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}

	if !d.Current(gen) {
		t.Fatal("generation should be current before any newer call")
	}

	// A newer call invalidates the old generation, so a response tagged with
	// it would be discarded.
	d.Call(func(uint64) {})
	if d.Current(gen) {
		t.Error("stale generation still reported current")
	}
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	called := false
	d.Call(func(uint64) { called = true })
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if called {
		t.Error("cancelled call still fired")
	}
}

func TestInterval_StopPreventsFurtherFires(t *testing.T) {
	var mu sync.Mutex
	count := 0

	iv := NewInterval(10*time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	iv.Start()

	time.Sleep(35 * time.Millisecond)
	iv.Stop()

	mu.Lock()
	after := count
	mu.Unlock()
	if after == 0 {
		t.Fatal("interval never fired")
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := count
	mu.Unlock()
	if final != after {
		t.Errorf("interval fired %d more times after Stop", final-after)
	}
	if iv.Running() {
		t.Error("Running() true after Stop")
	}
}

func TestInterval_StartReplacesPrevious(t *testing.T) {
	var mu sync.Mutex
	count := 0

	iv := NewInterval(10*time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Restarting must not stack a second loop on the same handle.
	iv.Start()
	iv.Start()
	time.Sleep(55 * time.Millisecond)
	iv.Stop()

	mu.Lock()
	defer mu.Unlock()
	// A single 10ms loop fires ~5 times in 55ms; two stacked loops ~10.
	if count > 7 {
		t.Errorf("fired %d times, looks like overlapping loops", count)
	}
}

func TestInterval_StopIdempotent(t *testing.T) {
	iv := NewInterval(10*time.Millisecond, func() {})
	iv.Stop()
	iv.Start()
	iv.Stop()
	iv.Stop()
}
