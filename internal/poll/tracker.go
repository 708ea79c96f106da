package poll

import "sync"

// Tracker enforces one active poller per resource id. Starting a poll for an
// id that already has one stops the previous poller first, so requests for
// the same resource never overlap.
type Tracker struct {
	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pollers: make(map[string]*Poller)}
}

// Start registers and starts a poller for id, replacing any previous one.
func (t *Tracker) Start(id string, p *Poller) {
	t.mu.Lock()
	prev := t.pollers[id]
	t.pollers[id] = p
	t.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	p.Start()
}

// Stop stops and removes the poller for id, if any.
func (t *Tracker) Stop(id string) {
	t.mu.Lock()
	p := t.pollers[id]
	delete(t.pollers, id)
	t.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// StopAll stops every tracked poller. Used on teardown.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	pollers := t.pollers
	t.pollers = make(map[string]*Poller)
	t.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}

// Active reports whether id has a running poller.
func (t *Tracker) Active(id string) bool {
	t.mu.Lock()
	p := t.pollers[id]
	t.mu.Unlock()
	return p != nil && p.Running()
}
