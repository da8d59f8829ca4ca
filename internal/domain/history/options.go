package history

import (
	"time"

	"github.com/okian/ttlink/pkg/logger"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxSize bounds the number of live entries. The least recently used
// entry is evicted on overflow. Zero or negative means unbounded.
func WithMaxSize(n int) Option {
	return func(s *Store) {
		s.maxSize = n
	}
}

// WithRetention makes entries older than d invisible to Lookup and eligible
// for Prune. Zero keeps entries forever.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithOrganizerInSignature includes the organizer in event signatures.
func WithOrganizerInSignature(on bool) Option {
	return func(s *Store) {
		s.withOrganizer = on
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}
