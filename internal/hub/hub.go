// Package hub serializes event processing onto a single goroutine.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"presencerelay/pkg/types"
)

// EventHandler processes inbound events on the hub goroutine.
type EventHandler interface {
	Handle(event types.InboundEvent)
}

// Hub owns the only goroutine that touches registry state
// ARCHITECTURAL DISCOVERY: inbound events and internal tasks (reaper sweeps)
// share one select loop, so a sweep can never interleave with a join
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channels absorb bursts; producers never block
	events chan types.InboundEvent
	tasks  chan func()

	shutdown chan struct{}
	done     chan struct{}

	handler EventHandler
	log     *zap.Logger

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub with room for eventBuffer queued events.
func NewHub(handler EventHandler, eventBuffer int, log *zap.Logger) *Hub {
	if eventBuffer <= 0 {
		eventBuffer = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		events:  make(chan types.InboundEvent, eventBuffer),
		tasks:   make(chan func(), 16),
		handler: handler,
		log:     log,
	}
}

// Start begins processing until Stop or ctx cancellation
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	h.log.Info("starting event hub", zap.Int("buffer", cap(h.events)))
	go h.run(ctx, h.shutdown, h.done)

	return nil
}

// Stop signals the loop and waits until every queued event has been handled.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	<-done
	h.log.Info("event hub stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch queues an inbound event without blocking.
func (h *Hub) Dispatch(event types.InboundEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- event:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Submit queues fn to run on the hub goroutine without blocking.
func (h *Hub) Submit(fn func()) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.tasks <- fn:
		return nil
	default:
		return ErrTaskChannelFull
	}
}

// run is the main processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case event := <-h.events:
			h.safely(func() { h.handler.Handle(event) }, zap.String("type", event.Type), zap.String("connection_id", event.ConnectionID))

		case fn := <-h.tasks:
			h.safely(fn)

		case <-shutdown:
			h.drain()
			return

		case <-ctx.Done():
			h.log.Info("hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// drain handles whatever was queued before Stop, so late disconnects still
// reach the handler. Dispatch is already refusing new work.
func (h *Hub) drain() {
	for {
		select {
		case event := <-h.events:
			h.safely(func() { h.handler.Handle(event) }, zap.String("type", event.Type), zap.String("connection_id", event.ConnectionID))
		case fn := <-h.tasks:
			h.safely(fn)
		default:
			return
		}
	}
}

// safely keeps one misbehaving event from taking the hub down.
func (h *Hub) safely(fn func(), fields ...zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered panic in hub", append(fields, zap.Any("panic", r))...)
		}
	}()
	fn()
}
