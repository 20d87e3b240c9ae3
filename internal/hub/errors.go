package hub

import "errors"

// Hub lifecycle and queueing errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("event channel is full")
	ErrTaskChannelFull   = errors.New("task channel is full")
)
