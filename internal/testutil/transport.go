// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"fmt"
	"sync"

	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

var _ interfaces.Transport = (*RecordingTransport)(nil)

// RecordingTransport is an in-memory Transport that keeps every event each
// connection would have received.
type RecordingTransport struct {
	mu       sync.Mutex
	open     map[string]bool
	order    []string
	received map[string][]types.OutboundEvent
	dead     map[string]bool
}

func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{
		open:     make(map[string]bool),
		received: make(map[string][]types.OutboundEvent),
		dead:     make(map[string]bool),
	}
}

// Connect opens connection ids so broadcasts reach them.
func (t *RecordingTransport) Connect(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if !t.open[id] {
			t.open[id] = true
			t.order = append(t.order, id)
		}
	}
}

// Disconnect closes a connection; it no longer receives anything.
func (t *RecordingTransport) Disconnect(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, id)
}

// MarkDead keeps the connection open for broadcasts but reports it not alive.
func (t *RecordingTransport) MarkDead(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dead[id] = true
}

func (t *RecordingTransport) Send(connectionID string, event types.OutboundEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open[connectionID] {
		return fmt.Errorf("connection %s is not open", connectionID)
	}
	t.received[connectionID] = append(t.received[connectionID], event)
	return nil
}

func (t *RecordingTransport) Broadcast(event types.OutboundEvent) {
	t.BroadcastExcept("", event)
}

func (t *RecordingTransport) BroadcastExcept(excludeID string, event types.OutboundEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.order {
		if id == excludeID || !t.open[id] {
			continue
		}
		t.received[id] = append(t.received[id], event)
	}
}

func (t *RecordingTransport) IsAlive(connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[connectionID] && !t.dead[connectionID]
}

func (t *RecordingTransport) ConnectionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Events returns a copy of what connectionID received, in order.
func (t *RecordingTransport) Events(connectionID string) []types.OutboundEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.OutboundEvent(nil), t.received[connectionID]...)
}

// Types returns the event types connectionID received, in order.
func (t *RecordingTransport) Types(connectionID string) []string {
	events := t.Events(connectionID)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// Last returns the newest event connectionID received.
func (t *RecordingTransport) Last(connectionID string) (types.OutboundEvent, bool) {
	events := t.Events(connectionID)
	if len(events) == 0 {
		return types.OutboundEvent{}, false
	}
	return events[len(events)-1], true
}

// Total counts events across all connections.
func (t *RecordingTransport) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, events := range t.received {
		n += len(events)
	}
	return n
}

// Reset forgets received events but keeps connections open.
func (t *RecordingTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received = make(map[string][]types.OutboundEvent)
}
