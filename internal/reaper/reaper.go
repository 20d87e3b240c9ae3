// Package reaper removes sessions whose connection has silently died.
package reaper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"presencerelay/internal/presence"
	"presencerelay/internal/session"
	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

// Submitter runs work on the goroutine that owns the registry.
type Submitter interface {
	Submit(fn func()) error
}

// Reaper periodically rechecks sessions older than the staleness threshold
// FUNCTIONAL DISCOVERY: staleness is measured from JoinedAt, so a healthy
// long-lived session is re-checked every sweep; only dead ones are removed
type Reaper struct {
	registry  *session.Registry
	presence  *presence.Broadcaster
	transport interfaces.Transport
	submitter Submitter
	interval  time.Duration
	threshold time.Duration
	hooks     []func()
	now       func() time.Time
	log       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Reaper.
type Option func(*Reaper)

// WithSweepHook runs fn on the hub goroutine after every sweep.
func WithSweepHook(fn func()) Option {
	return func(r *Reaper) { r.hooks = append(r.hooks, fn) }
}

// WithClock overrides the sweep clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

func New(registry *session.Registry, broadcaster *presence.Broadcaster, transport interfaces.Transport, submitter Submitter, interval, threshold time.Duration, log *zap.Logger, opts ...Option) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reaper{
		registry:  registry,
		presence:  broadcaster,
		transport: transport,
		submitter: submitter,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the ticker. Calling Start twice is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

// Stop halts the ticker and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reaper) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// ARCHITECTURAL DISCOVERY: the sweep mutates the registry, so it runs on the hub
			if err := r.submitter.Submit(func() { r.Sweep() }); err != nil {
				r.log.Warn("skipped reaper sweep", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep removes every stale session whose connection is no longer alive and
// returns the removed sessions. It must run on the hub goroutine.
func (r *Reaper) Sweep() []types.UserSession {
	var reaped []types.UserSession

	for _, candidate := range r.registry.Stale(r.now(), r.threshold) {
		if r.transport.IsAlive(candidate.ConnectionID) {
			continue
		}
		removed, ok := r.registry.Unregister(candidate.ConnectionID)
		if !ok {
			continue
		}
		r.log.Info("reaped stale session",
			zap.String("connection_id", removed.ConnectionID),
			zap.String("username", removed.DisplayName),
			zap.Duration("age", r.now().Sub(removed.JoinedAt)))
		r.presence.Left(removed, types.PresenceReaped)
		reaped = append(reaped, removed)
	}

	for _, hook := range r.hooks {
		hook()
	}
	return reaped
}
