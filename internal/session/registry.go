package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"presencerelay/pkg/types"
)

// Registry is the authoritative directory of live sessions
// ARCHITECTURAL DISCOVERY: two indexes plus an order slice, all mutated under
// one lock, so a session is either in every index or in none
type Registry struct {
	mu           sync.RWMutex
	byConnection map[string]*types.UserSession // connectionID -> session
	byName       map[string]*types.UserSession // displayName -> session
	order        []string                      // connectionIDs in registration order
	now          func() time.Time
	log          *zap.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the clock used to stamp JoinedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byConnection: make(map[string]*types.UserSession),
		byName:       make(map[string]*types.UserSession),
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a trimmed, unique display name to a connection.
// Names are global: a connection re-sending its own name is rejected too.
func (r *Registry) Register(connectionID, rawName string) (types.UserSession, error) {
	name := types.NormalizeName(rawName)
	if name == "" {
		return types.UserSession{}, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[name]; taken {
		return types.UserSession{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if existing, joined := r.byConnection[connectionID]; joined {
		return types.UserSession{}, fmt.Errorf("%w as %q", ErrAlreadyJoined, existing.DisplayName)
	}

	session := &types.UserSession{
		ConnectionID: connectionID,
		DisplayName:  name,
		JoinedAt:     r.now(),
	}
	r.byConnection[connectionID] = session
	r.byName[name] = session
	r.order = append(r.order, connectionID)

	r.log.Debug("session registered",
		zap.String("connection_id", connectionID),
		zap.String("username", name),
		zap.Int("online", len(r.byConnection)))
	return *session, nil
}

// Unregister removes the session bound to connectionID, if any.
func (r *Registry) Unregister(connectionID string) (types.UserSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.byConnection[connectionID]
	if !exists {
		return types.UserSession{}, false
	}

	delete(r.byConnection, connectionID)
	delete(r.byName, session.DisplayName)
	r.order = lo.Without(r.order, connectionID)

	r.log.Debug("session unregistered",
		zap.String("connection_id", connectionID),
		zap.String("username", session.DisplayName),
		zap.Int("online", len(r.byConnection)))
	return *session, true
}

// LookupByConnection returns the session bound to a connection.
func (r *Registry) LookupByConnection(connectionID string) (types.UserSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.byConnection[connectionID]
	if !exists {
		return types.UserSession{}, false
	}
	return *session, true
}

// LookupByName returns the session holding exactly this display name.
func (r *Registry) LookupByName(name string) (types.UserSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.byName[name]
	if !exists {
		return types.UserSession{}, false
	}
	return *session, true
}

// Snapshot returns copies of all sessions in registration order.
func (r *Registry) Snapshot() []types.UserSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(connectionID string, _ int) types.UserSession {
		return *r.byConnection[connectionID]
	})
}

// Count returns the number of registered identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConnection)
}

// Stale returns sessions registered longer than threshold before now.
func (r *Registry) Stale(now time.Time, threshold time.Duration) []types.UserSession {
	return lo.Filter(r.Snapshot(), func(s types.UserSession, _ int) bool {
		return now.Sub(s.JoinedAt) > threshold
	})
}
