//go:generate go run go.uber.org/mock/mockgen -source=presence.go -destination=../../internal/mocks/mock_presence.go -package=mocks
package interfaces

import (
	"context"

	"presencerelay/pkg/types"
)

// PresenceObserver is notified after the set of online users changes.
// Implementations must return quickly; they run on the event goroutine.
type PresenceObserver interface {
	PresenceChanged(change types.PresenceChange)
}

// Journal records presence changes for reporting. It is never used to
// restore sessions.
type Journal interface {
	PresenceObserver

	// Totals returns the number of recorded changes per kind.
	Totals(ctx context.Context) (map[types.PresenceKind]int, error)

	HealthCheck(ctx context.Context) error

	Close() error
}

// SessionDirectory is the read-only view of the registry used by collaborators.
type SessionDirectory interface {
	Count() int
	Snapshot() []types.UserSession
}
