package repository

import "errors"

// Sentinel kinds for backend errors.
var (
	ErrUnknownBackend = errors.New("unknown history backend")
	ErrEmptyPath      = errors.New("history path must not be empty")
	ErrClosed         = errors.New("history backend closed")
)
