package ics

import (
	"time"

	"github.com/okian/ttlink/pkg/logger"
)

const defaultMaxOccurrences = 5_000

// Option configures Read.
type Option func(*reader)

type reader struct {
	loc            *time.Location
	maxOccurrences int
	log            logger.Logger
}

// WithLocation sets the zone for floating times and all-day events.
func WithLocation(loc *time.Location) Option {
	return func(r *reader) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithMaxOccurrences caps the expansion of a single recurring event.
func WithMaxOccurrences(n int) Option {
	return func(r *reader) {
		if n > 0 {
			r.maxOccurrences = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *reader) {
		if l != nil {
			r.log = l
		}
	}
}
