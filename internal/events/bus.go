// Package events subscribes to the backend's websocket event channel and fans
// typed events out to in-process handlers. Events carry resource ids, not
// canonical state: consumers react by re-fetching, never by applying payloads
// directly.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Type identifies an event kind on the channel.
type Type string

// Event types delivered by the backend.
const (
	BuildUpdate    Type = "BUILD_UPDATE"
	RepoUpdate     Type = "REPO_UPDATE"
	ScenarioUpdate Type = "SCENARIO_UPDATE"
	ScanUpdate     Type = "SCAN_UPDATE"
	ScanError      Type = "SCAN_ERROR"
)

// Event is one message from the channel. Payload is a delta/hint, not a
// snapshot; interested consumers re-fetch the resource.
type Event struct {
	Type       Type            `json:"type"`
	ResourceID string          `json:"resource_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Handler receives matching events. Handlers run on the bus's read loop and
// must not block.
type Handler func(Event)

// Bus is a subscribable view over the websocket event channel.
type Bus struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	nextID int
	subs   map[Type]map[int]Handler
}

// Dial connects to the event endpoint and starts the read loop. The loop ends
// when ctx is cancelled, Close is called, or the connection drops.
func Dial(ctx context.Context, endpoint string, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	b := &Bus{
		conn:   conn,
		logger: logger,
		done:   make(chan struct{}),
		subs:   make(map[Type]map[int]Handler),
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.done:
		}
	}()
	go b.readLoop()

	return b, nil
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// SubscribeResource registers a handler filtered to one resource id.
func (b *Bus) SubscribeResource(t Type, resourceID string, h Handler) func() {
	return b.Subscribe(t, func(ev Event) {
		if ev.ResourceID == resourceID {
			h(ev)
		}
	})
}

// Close shuts the connection down. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return b.conn.Close()
}

// Closed reports whether the bus has shut down.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Bus) readLoop() {
	defer b.Close()

	for {
		var ev Event
		if err := b.conn.ReadJSON(&ev); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.logger.Warn("event channel closed", "error", err)
			}
			return
		}

		if ev.Type == "" {
			continue
		}
		b.dispatch(ev)
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type]))
	for _, h := range b.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
