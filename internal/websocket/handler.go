package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presencerelay/internal/config"
	"presencerelay/pkg/types"
)

// Dispatcher receives every decoded inbound envelope and the final disconnect.
type Dispatcher interface {
	Dispatch(event types.InboundEvent) error
}

// Handler upgrades HTTP requests and pumps frames into the Dispatcher
// ARCHITECTURAL DISCOVERY: the transport knows nothing about names or routing;
// it only assigns ids, tracks liveness and moves envelopes
type Handler struct {
	pool       *Pool
	dispatcher Dispatcher
	cfg        *config.WebSocketConfig
	upgrader   websocket.Upgrader
	log        *zap.Logger
	active     sync.WaitGroup
}

// NewHandler creates a WebSocket handler. cfg nil falls back to defaults.
func NewHandler(pool *Pool, dispatcher Dispatcher, cfg *config.WebSocketConfig, log *zap.Logger) *Handler {
	if cfg == nil {
		cfg = config.DefaultConfig().WebSocket
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &Handler{
		pool:       pool,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// FUNCTIONAL DISCOVERY: an empty allow-list accepts every origin
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request, registers the connection and starts its pumps.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(uuid.NewString(), ws, h.cfg.BufferSize, h.cfg.WriteTimeout, h.log)
	if err := h.pool.Add(conn); err != nil {
		h.log.Error("failed to track connection", zap.Error(err))
		_ = conn.Close()
		return
	}

	h.log.Info("connection opened",
		zap.String("connection_id", conn.ID()),
		zap.String("remote_addr", r.RemoteAddr))

	h.active.Add(1)
	go func() {
		defer h.active.Done()
		h.handleConnection(conn)
	}()
}

// Wait blocks until every connection handler has dispatched its disconnect, or ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnection runs the heartbeat and the read pump until the socket dies
// ARCHITECTURAL DISCOVERY: the pool forgets the connection before the disconnect
// is dispatched, so presence broadcasts for the departure never target it
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.pool.Remove(conn)
		_ = conn.Close()
		if err := h.dispatcher.Dispatch(types.InboundEvent{
			ConnectionID: conn.ID(),
			Disconnect:   true,
		}); err != nil {
			h.log.Error("failed to dispatch disconnect",
				zap.String("connection_id", conn.ID()),
				zap.Error(err))
		}
		h.log.Info("connection closed", zap.String("connection_id", conn.ID()))
	}()

	ws := conn.conn
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug("websocket read error",
					zap.String("connection_id", conn.ID()),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, data)
	}
}

// TECHNICAL DISCOVERY: WriteControl is safe alongside the writer goroutine
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
		h.replyError(conn, types.ErrMalformedPayload.Error())
		return
	}

	err := h.dispatcher.Dispatch(types.InboundEvent{
		ConnectionID: conn.ID(),
		Type:         envelope.Type,
		Data:         envelope.Data,
		Ack:          envelope.Ack,
	})
	if err != nil {
		h.log.Warn("dropped inbound event",
			zap.String("connection_id", conn.ID()),
			zap.String("type", envelope.Type),
			zap.Error(err))
		h.replyError(conn, "server busy, event dropped")
	}
}

func (h *Handler) replyError(conn *Connection, message string) {
	err := conn.WriteJSON(types.OutboundEvent{
		Type: types.EventError,
		Data: types.ErrorPayload{Message: message},
	})
	if err != nil {
		h.log.Debug("failed to send error reply", zap.String("connection_id", conn.ID()), zap.Error(err))
	}
}
