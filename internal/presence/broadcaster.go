// Package presence tells connected clients who is online.
package presence

import (
	"time"

	"go.uber.org/zap"

	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

// Broadcaster emits presence notices and full snapshots after registry changes
// ARCHITECTURAL DISCOVERY: point notices always precede the snapshot so a client
// can animate the change and then reconcile against the full list
type Broadcaster struct {
	transport interfaces.Transport
	directory interfaces.SessionDirectory
	observers []interfaces.PresenceObserver
	now       func() time.Time
	log       *zap.Logger
}

// NewBroadcaster wires the broadcaster to a transport and a read view of the registry.
func NewBroadcaster(transport interfaces.Transport, directory interfaces.SessionDirectory, log *zap.Logger, observers ...interfaces.PresenceObserver) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		transport: transport,
		directory: directory,
		observers: observers,
		now:       time.Now,
		log:       log,
	}
}

// Joined announces a new session to everyone else, then refreshes every client.
func (b *Broadcaster) Joined(session types.UserSession) {
	b.transport.BroadcastExcept(session.ConnectionID, types.OutboundEvent{
		Type: types.EventUserJoined,
		Data: types.UserNotice{Username: session.DisplayName, ConnectionID: session.ConnectionID},
	})
	b.BroadcastPresence()
	b.notify(types.PresenceJoined, session)
}

// Left announces a departed session to the remaining clients, then refreshes them.
func (b *Broadcaster) Left(session types.UserSession, kind types.PresenceKind) {
	b.transport.BroadcastExcept(session.ConnectionID, types.OutboundEvent{
		Type: types.EventUserLeft,
		Data: types.UserNotice{Username: session.DisplayName, ConnectionID: session.ConnectionID},
	})
	b.transport.BroadcastExcept(session.ConnectionID, b.snapshotEvent())
	b.notify(kind, session)
}

// BroadcastPresence sends the full snapshot to every connection.
func (b *Broadcaster) BroadcastPresence() {
	b.transport.Broadcast(b.snapshotEvent())
}

func (b *Broadcaster) snapshotEvent() types.OutboundEvent {
	return types.OutboundEvent{
		Type: types.EventOnlineUsers,
		Data: b.directory.Snapshot(),
	}
}

func (b *Broadcaster) notify(kind types.PresenceKind, session types.UserSession) {
	change := types.PresenceChange{
		Kind:        kind,
		Session:     session,
		OnlineCount: b.directory.Count(),
		At:          b.now(),
	}

	b.log.Info("presence changed",
		zap.String("kind", string(kind)),
		zap.String("connection_id", session.ConnectionID),
		zap.String("username", session.DisplayName),
		zap.Int("online", change.OnlineCount))

	for _, observer := range b.observers {
		observer.PresenceChanged(change)
	}
}
