package service

import "errors"

// Sentinel error kinds returned by Service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrRunNotFound  = errors.New("registration run not found")
	ErrNoRegistrar  = errors.New("no time tracker configured")
	ErrEmptyRun     = errors.New("registration run has no pairs")
	ErrRunFinished  = errors.New("registration run already finished")
	ErrInvalidInput = errors.New("invalid input")
)
