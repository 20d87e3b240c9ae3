//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=../../internal/mocks/mock_transport.go -package=mocks
package interfaces

import "presencerelay/pkg/types"

// Transport delivers outbound events to live connections
// ARCHITECTURAL DISCOVERY: the core never touches sockets directly; every send
// goes through this boundary so routing can be tested without a network
type Transport interface {
	// Send queues an event for one connection. It never blocks on the
	// recipient's I/O; an unknown or saturated connection returns an error.
	Send(connectionID string, event types.OutboundEvent) error

	// Broadcast queues an event for every live connection, registered or not.
	Broadcast(event types.OutboundEvent)

	// BroadcastExcept queues an event for every live connection but one.
	BroadcastExcept(excludeID string, event types.OutboundEvent)

	// IsAlive reports whether the connection is still open.
	IsAlive(connectionID string) bool

	// ConnectionCount returns the number of raw connections.
	ConnectionCount() int
}
