// Package router validates inbound events and routes them to their recipients.
package router

import (
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"presencerelay/internal/presence"
	"presencerelay/internal/session"
	"presencerelay/pkg/interfaces"
	"presencerelay/pkg/types"
)

// Options tune routing limits. Zero values take defaults; RateLimit 0 disables limiting.
type Options struct {
	MaxMediaBytes int
	RateLimit     int
	RateWindow    time.Duration
}

type handlerFunc func(event types.InboundEvent) error

// Router turns inbound events into registry changes and outbound events
// ARCHITECTURAL DISCOVERY: Handle is only ever called from the hub goroutine,
// so every register/lookup/send sequence below runs without interleaving
type Router struct {
	registry      *session.Registry
	presence      *presence.Broadcaster
	transport     interfaces.Transport
	limiter       *RateLimiter
	maxMediaBytes int
	handlers      map[string]handlerFunc
	now           func() time.Time
	log           *zap.Logger
}

// NewRouter creates a router over the registry, broadcaster and transport
func NewRouter(registry *session.Registry, broadcaster *presence.Broadcaster, transport interfaces.Transport, opts Options, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxMediaBytes <= 0 {
		opts.MaxMediaBytes = 10 << 20
	}

	r := &Router{
		registry:      registry,
		presence:      broadcaster,
		transport:     transport,
		maxMediaBytes: opts.MaxMediaBytes,
		now:           time.Now,
		log:           log,
	}
	if opts.RateLimit > 0 {
		r.limiter = NewRateLimiter(opts.RateLimit, opts.RateWindow)
	}

	r.handlers = map[string]handlerFunc{
		types.EventJoin:           r.handleJoin,
		types.EventSendMedia:      r.handleMedia,
		types.EventSendMessage:    r.handleMessage,
		types.EventTypingStart:    r.handleTyping(true),
		types.EventTypingStop:     r.handleTyping(false),
		types.EventSendImage:      r.handleLegacyImage,
		types.EventGetSessionInfo: r.handleSessionInfo,
	}
	return r
}

// Handle processes one inbound event. Failures go back to the sender as error events.
func (r *Router) Handle(event types.InboundEvent) {
	if event.Disconnect {
		r.handleDisconnect(event.ConnectionID)
		return
	}

	handler, ok := r.handlers[event.Type]
	if !ok {
		r.replyError(event.ConnectionID, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Type))
		return
	}

	if err := handler(event); err != nil {
		r.replyError(event.ConnectionID, err)
	}
}

// Cleanup drops idle rate limiter state.
func (r *Router) Cleanup() {
	if r.limiter != nil {
		r.limiter.Cleanup()
	}
}

func (r *Router) handleJoin(event types.InboundEvent) error {
	var req types.JoinRequest
	if err := types.DecodePayload(event.Data, &req); err != nil {
		return err
	}

	session, err := r.registry.Register(event.ConnectionID, req.Username)
	if err != nil {
		return err
	}

	r.send(event.ConnectionID, types.OutboundEvent{
		Type: types.EventJoinSuccess,
		Data: types.JoinSuccess{
			Username:    session.DisplayName,
			OnlineUsers: r.registry.Snapshot(),
		},
		Ack: event.Ack,
	})
	r.presence.Joined(session)
	return nil
}

func (r *Router) handleMedia(event types.InboundEvent) error {
	sender, err := r.sender(event.ConnectionID)
	if err != nil {
		return err
	}

	var req types.MediaRequest
	if err := types.DecodePayload(event.Data, &req); err != nil {
		return err
	}
	req.Normalize()
	if err := types.ValidatePayload(&req); err != nil {
		return err
	}
	if len(req.Buffer) > r.maxMediaBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(req.Buffer), r.maxMediaBytes)
	}
	if err := r.allow(sender); err != nil {
		return err
	}

	recipient, err := r.recipient(req.TargetUser)
	if err != nil {
		return err
	}

	// FUNCTIONAL DISCOVERY: clients that omit the type get the sniffed one
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = mimetype.Detect(req.Buffer).String()
	}

	r.send(recipient.ConnectionID, types.OutboundEvent{
		Type: types.EventGetMedia,
		Data: types.MediaDelivery{
			Buffer:    req.Buffer,
			MediaType: mediaType,
			Filename:  req.Filename,
			From:      sender.DisplayName,
			Timestamp: r.now(),
		},
	})
	r.send(sender.ConnectionID, types.OutboundEvent{
		Type: types.EventMediaSent,
		Data: types.MediaReceipt{
			To:        recipient.DisplayName,
			Filename:  req.Filename,
			MediaType: mediaType,
			Size:      len(req.Buffer),
		},
		Ack: event.Ack,
	})
	return nil
}

func (r *Router) handleMessage(event types.InboundEvent) error {
	sender, err := r.sender(event.ConnectionID)
	if err != nil {
		return err
	}

	var req types.MessageRequest
	if err := types.DecodePayload(event.Data, &req); err != nil {
		return err
	}
	req.Normalize()
	if err := types.ValidatePayload(&req); err != nil {
		return err
	}
	if err := r.allow(sender); err != nil {
		return err
	}

	recipient, err := r.recipient(req.TargetUser)
	if err != nil {
		return err
	}

	now := r.now()
	r.send(recipient.ConnectionID, types.OutboundEvent{
		Type: types.EventReceiveMessage,
		Data: types.MessageDelivery{From: sender.DisplayName, Message: req.Message, Timestamp: now},
	})
	r.send(sender.ConnectionID, types.OutboundEvent{
		Type: types.EventMessageSent,
		Data: types.MessageReceipt{To: recipient.DisplayName, Message: req.Message, Timestamp: now},
		Ack:  event.Ack,
	})
	return nil
}

// FUNCTIONAL DISCOVERY: typing is a lossy signal; every failure is swallowed
func (r *Router) handleTyping(isTyping bool) handlerFunc {
	return func(event types.InboundEvent) error {
		sender, ok := r.registry.LookupByConnection(event.ConnectionID)
		if !ok {
			return nil
		}

		var req types.TypingRequest
		if types.DecodePayload(event.Data, &req) != nil {
			return nil
		}
		req.Normalize()
		if types.ValidatePayload(&req) != nil {
			return nil
		}

		recipient, ok := r.registry.LookupByName(req.TargetUser)
		if !ok {
			return nil
		}

		r.send(recipient.ConnectionID, types.OutboundEvent{
			Type: types.EventUserTyping,
			Data: types.TypingNotice{Username: sender.DisplayName, IsTyping: isTyping},
		})
		return nil
	}
}

// handleLegacyImage serves older clients that address recipients by name or
// by raw connection id. Failures are silent.
// TODO: drop the raw-id tier once no client sends send_image with connection ids.
func (r *Router) handleLegacyImage(event types.InboundEvent) error {
	if _, ok := r.registry.LookupByConnection(event.ConnectionID); !ok {
		return nil
	}

	var req types.LegacyImageRequest
	if types.DecodePayload(event.Data, &req) != nil {
		return nil
	}
	if types.ValidatePayload(&req) != nil {
		return nil
	}

	target := req.ID
	if recipient, ok := r.registry.LookupByName(req.ID); ok {
		target = recipient.ConnectionID
	} else if recipient, ok := r.registry.LookupByConnection(req.ID); ok {
		target = recipient.ConnectionID
	}

	r.send(target, types.OutboundEvent{
		Type: types.EventGetImage,
		Data: types.LegacyImage{Buffer: req.Buffer},
	})
	return nil
}

func (r *Router) handleSessionInfo(event types.InboundEvent) error {
	info := types.SessionInfo{OnlineUsers: r.registry.Snapshot()}
	if session, ok := r.registry.LookupByConnection(event.ConnectionID); ok {
		info.Session = &session
	}

	r.send(event.ConnectionID, types.OutboundEvent{
		Type: types.EventSessionInfo,
		Data: info,
		Ack:  event.Ack,
	})
	return nil
}

func (r *Router) handleDisconnect(connectionID string) {
	if r.limiter != nil {
		r.limiter.Forget(connectionID)
	}

	session, ok := r.registry.Unregister(connectionID)
	if !ok {
		return
	}
	r.presence.Left(session, types.PresenceLeft)
}

func (r *Router) sender(connectionID string) (types.UserSession, error) {
	session, ok := r.registry.LookupByConnection(connectionID)
	if !ok {
		return types.UserSession{}, ErrNotJoined
	}
	return session, nil
}

func (r *Router) recipient(name string) (types.UserSession, error) {
	session, ok := r.registry.LookupByName(name)
	if !ok {
		return types.UserSession{}, fmt.Errorf("%w: %s", ErrRecipientNotFound, name)
	}
	return session, nil
}

func (r *Router) allow(sender types.UserSession) error {
	if r.limiter == nil || r.limiter.Allow(sender.ConnectionID) {
		return nil
	}
	return ErrRateLimitExceeded
}

func (r *Router) send(connectionID string, event types.OutboundEvent) {
	if err := r.transport.Send(connectionID, event); err != nil {
		r.log.Debug("send failed",
			zap.String("connection_id", connectionID),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

func (r *Router) replyError(connectionID string, err error) {
	r.log.Debug("rejected event", zap.String("connection_id", connectionID), zap.Error(err))
	r.send(connectionID, types.OutboundEvent{
		Type: types.EventError,
		Data: types.ErrorPayload{Message: err.Error()},
	})
}
