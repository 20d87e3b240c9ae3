package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

var _ interfaces.Transport = (*Pool)(nil)

// Pool tracks every open connection, joined or not, and implements Transport
// FUNCTIONAL DISCOVERY: sends never block; a saturated recipient loses the frame
type Pool struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	log         *zap.Logger
}

// NewPool creates an empty connection pool
func NewPool(log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		connections: make(map[string]*Connection),
		log:         log,
	}
}

// Add starts tracking a connection.
func (p *Pool) Add(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.connections[conn.ID()] = conn
	return nil
}

// Remove stops tracking conn. Only the exact instance registered under its id is removed.
func (p *Pool) Remove(conn *Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if registered, exists := p.connections[conn.ID()]; exists && registered == conn {
		delete(p.connections, conn.ID())
	}
}

// Get returns the connection with this id.
func (p *Pool) Get(connectionID string) (*Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conn, exists := p.connections[connectionID]
	return conn, exists
}

// Send encodes event and queues it for one connection.
func (p *Pool) Send(connectionID string, event types.OutboundEvent) error {
	conn, exists := p.Get(connectionID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidJSON
	}
	return conn.Send(data)
}

// Broadcast queues event for every open connection.
func (p *Pool) Broadcast(event types.OutboundEvent) {
	p.BroadcastExcept("", event)
}

// BroadcastExcept queues event for every open connection except excludeID.
func (p *Pool) BroadcastExcept(excludeID string, event types.OutboundEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode broadcast", zap.String("type", event.Type), zap.Error(err))
		return
	}

	for _, conn := range p.snapshot() {
		if conn.ID() == excludeID {
			continue
		}
		if err := conn.Send(data); err != nil {
			p.log.Warn("dropped broadcast frame",
				zap.String("connection_id", conn.ID()),
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}
}

// IsAlive reports whether the connection is tracked and not closed.
func (p *Pool) IsAlive(connectionID string) bool {
	conn, exists := p.Get(connectionID)
	return exists && !conn.IsClosed()
}

// ConnectionCount returns the number of tracked connections.
func (p *Pool) ConnectionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.connections)
}

// CloseAll closes every tracked connection.
func (p *Pool) CloseAll() {
	for _, conn := range p.snapshot() {
		if err := conn.Close(); err != nil {
			p.log.Debug("close failed", zap.String("connection_id", conn.ID()), zap.Error(err))
		}
	}
}

func (p *Pool) snapshot() []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := make([]*Connection, 0, len(p.connections))
	for _, conn := range p.connections {
		conns = append(conns, conn)
	}
	return conns
}
