// Package poll tracks server-side long-running jobs (validation, split
// generation, commit scans) by re-fetching their status until it is terminal.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/async"
)

// ErrTimeout is reported when a job does not reach a terminal status within
// the configured attempt budget.
var ErrTimeout = errors.New("polling timed out")

// DefaultInterval matches the backend's status refresh cadence.
const DefaultInterval = 2 * time.Second

// Snapshot is one polled status observation. Each snapshot overwrites the
// previous one; no history is kept.
type Snapshot struct {
	Status   string
	Progress int
	Message  string
}

// FetchFunc retrieves the current job snapshot.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// Config configures a Poller.
type Config struct {
	// Interval between fetches. Defaults to DefaultInterval.
	Interval time.Duration
	// MaxAttempts bounds the poll loop; 0 means unbounded.
	MaxAttempts int
	// OnUpdate receives every successful snapshot, terminal or not.
	OnUpdate func(Snapshot)
	// OnDone receives the terminal snapshot, or a zero snapshot with
	// ErrTimeout when the attempt budget is exhausted.
	OnDone func(Snapshot, error)
	// Logger records transient fetch failures. Defaults to slog.Default.
	Logger *slog.Logger
}

// Poller drives a FetchFunc on a fixed interval until the job reaches a
// terminal status. Transient fetch errors are logged and retried on the next
// tick; a terminal status stops the loop even when it is an error state.
type Poller struct {
	fetch    FetchFunc
	cfg      Config
	interval *async.Interval

	mu       sync.Mutex
	stopped  bool
	attempts int
}

// New creates a poller. Start must be called to begin fetching.
func New(fetch FetchFunc, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Poller{fetch: fetch, cfg: cfg}
	p.interval = async.NewInterval(cfg.Interval, p.tick)
	return p
}

// Start begins polling. Restarting a stopped poller resets its attempt count.
func (p *Poller) Start() {
	p.mu.Lock()
	p.stopped = false
	p.attempts = 0
	p.mu.Unlock()
	p.interval.Start()
}

// Stop cancels polling. No snapshot observed after Stop returns is delivered
// to the callbacks, even if a fetch was already in flight.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.interval.Stop()
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	return p.interval.Running()
}

func (p *Poller) tick() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.attempts++
	exhausted := p.cfg.MaxAttempts > 0 && p.attempts > p.cfg.MaxAttempts
	p.mu.Unlock()

	if exhausted {
		p.finish(Snapshot{}, ErrTimeout)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval*3)
	defer cancel()

	snap, err := p.fetch(ctx)
	if err != nil {
		// Transient failure: keep polling.
		p.cfg.Logger.Warn("status fetch failed, retrying next tick", "error", err)
		return
	}

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	if p.cfg.OnUpdate != nil {
		p.cfg.OnUpdate(snap)
	}

	if api.TerminalStatus(snap.Status) {
		p.finish(snap, nil)
	}
}

func (p *Poller) finish(snap Snapshot, err error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.interval.Stop()
	if p.cfg.OnDone != nil {
		p.cfg.OnDone(snap, err)
	}
}
