package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Pool-related errors
var (
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrUnknownConnection = errors.New("unknown connection")
)
