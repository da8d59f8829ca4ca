package registration

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidTransition = errors.New("invalid registration transition")
	ErrUnknownPair       = errors.New("pair not tracked in this run")
	ErrDuplicatePair     = errors.New("pair already tracked in this run")
)

// ItemError is one failing pair in an aggregated error summary.
type ItemError struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Message string `json:"message"`
}
