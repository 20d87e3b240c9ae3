package session

import "errors"

// Registration errors; the registry is unchanged whenever one is returned
var (
	ErrEmptyName     = errors.New("username cannot be empty")
	ErrDuplicateName = errors.New("username is already taken")
	ErrAlreadyJoined = errors.New("connection has already joined")
)
