package router

import "errors"

// Routing errors reported back to the originating connection
var (
	ErrNotJoined         = errors.New("you must join before sending")
	ErrRecipientNotFound = errors.New("recipient is not online")
	ErrPayloadTooLarge   = errors.New("media payload too large")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnknownEvent      = errors.New("unknown event type")
)
