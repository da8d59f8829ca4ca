package ai

import (
	"github.com/okian/ttlink/pkg/logger"
)

// Option configures a Suggester.
type Option func(*Suggester)

// WithModel selects the model id.
func WithModel(model string) Option {
	return func(s *Suggester) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxConcurrent bounds parallel API calls.
func WithMaxConcurrent(n int) Option {
	return func(s *Suggester) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithMessages injects the messages endpoint, mainly for tests.
func WithMessages(m Messages) Option {
	return func(s *Suggester) {
		s.messages = m
	}
}

// WithHistory adds the most used history entries to the prompt.
func WithHistory(h HistorySource) Option {
	return func(s *Suggester) {
		s.history = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Suggester) {
		if l != nil {
			s.log = l
		}
	}
}
