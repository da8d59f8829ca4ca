package history

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrStorage marks any failure to read, write or flush history. Callers
	// must surface it; a lost write means the link is never learned.
	ErrStorage = errors.New("history storage failure")

	ErrClosed         = errors.New("history store closed")
	ErrEmptySignature = errors.New("event has an empty signature")
	ErrDecode         = errors.New("history decode failed")
)
