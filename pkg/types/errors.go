package types

import "errors"

// Payload-level errors shared by the router and the transport
var (
	ErrMissingField     = errors.New("required field is missing")
	ErrMalformedPayload = errors.New("malformed event payload")
)
