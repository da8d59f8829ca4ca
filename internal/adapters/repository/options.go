package repository

import (
	"github.com/okian/ttlink/pkg/logger"
)

type settings struct {
	log logger.Logger
}

// Option configures a backend.
type Option func(*settings)

// WithLogger sets the backend logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

func newSettings(name string, opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository." + name)
	}
	return s
}
