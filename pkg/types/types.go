package types

import (
	"encoding/json"
	"time"
)

// Inbound event types sent by clients.
// FUNCTIONAL DISCOVERY: typing and legacy image events never produce error replies
const (
	EventJoin           = "join"
	EventSendMedia      = "send_media"
	EventSendMessage    = "send_message"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
	EventSendImage      = "send_image"
	EventGetSessionInfo = "get_session_info"
)

// Outbound event types produced by the relay.
const (
	EventJoinSuccess    = "join_success"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventOnlineUsers    = "online_users"
	EventGetMedia       = "get_media"
	EventMediaSent      = "media_sent"
	EventReceiveMessage = "receive_message"
	EventMessageSent    = "message_sent"
	EventUserTyping     = "user_typing"
	EventGetImage       = "get_image"
	EventSessionInfo    = "session_info"
	EventError          = "error"
)

// UserSession is one registered display name bound to one live connection.
// Sessions are immutable; renaming requires a disconnect and a new join.
type UserSession struct {
	ConnectionID string    `json:"id"`
	DisplayName  string    `json:"username"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Envelope is the frame exchanged over the WebSocket in both directions.
// Ack is an optional client correlation id echoed on direct replies.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Ack  string          `json:"ack,omitempty"`
}

// OutboundEvent is an event the core hands to the transport for delivery.
type OutboundEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	Ack  string `json:"ack,omitempty"`
}

// InboundEvent is a decoded envelope tagged with the connection it arrived on.
// Disconnect is set by the transport when the connection has closed.
type InboundEvent struct {
	ConnectionID string
	Type         string
	Data         json.RawMessage
	Ack          string
	Disconnect   bool
}

// Inbound payloads

type JoinRequest struct {
	Username string `json:"username"`
}

type MediaRequest struct {
	Buffer     []byte `json:"buffer"`
	TargetUser string `json:"targetUser" validate:"notblank"`
	MediaType  string `json:"mediaType"`
	Filename   string `json:"filename"`
}

type MessageRequest struct {
	TargetUser string `json:"targetUser" validate:"notblank"`
	Message    string `json:"message" validate:"required"`
}

type TypingRequest struct {
	TargetUser string `json:"targetUser" validate:"notblank"`
}

type LegacyImageRequest struct {
	Buffer []byte `json:"buffer"`
	ID     string `json:"id" validate:"notblank"`
}

// Outbound payloads

type JoinSuccess struct {
	Username    string        `json:"username"`
	OnlineUsers []UserSession `json:"onlineUsers"`
}

type UserNotice struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
}

type MediaDelivery struct {
	Buffer    []byte    `json:"buffer"`
	MediaType string    `json:"mediaType"`
	Filename  string    `json:"filename"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

type MediaReceipt struct {
	To        string `json:"to"`
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	Size      int    `json:"size"`
}

type MessageDelivery struct {
	From      string    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageReceipt struct {
	To        string    `json:"to"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingNotice struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type LegacyImage struct {
	Buffer []byte `json:"buffer"`
}

// SessionInfo answers get_session_info; Session is nil for unregistered callers.
type SessionInfo struct {
	Session     *UserSession  `json:"session"`
	OnlineUsers []UserSession `json:"onlineUsers"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// PresenceKind labels why the set of online users changed.
type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
	PresenceReaped PresenceKind = "reaped"
)

// PresenceChange is handed to presence observers (journal, mirror).
type PresenceChange struct {
	Kind        PresenceKind `json:"kind"`
	Session     UserSession  `json:"session"`
	OnlineCount int          `json:"onlineCount"`
	At          time.Time    `json:"at"`
}
