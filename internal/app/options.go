package service

import (
	"github.com/okian/ttlink/internal/adapters/mq/worker"
	"github.com/okian/ttlink/internal/config"
	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults from config.New are used
// otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithHistoryBackend overrides the backend named in the configuration.
func WithHistoryBackend(b history.Backend) Option {
	return func(s *Service) {
		s.backend = b
	}
}

// WithRegistrar sets the time tracker that registration runs write to.
func WithRegistrar(r worker.Registrar) Option {
	return func(s *Service) {
		s.registrar = r
	}
}

// WithSuggester enables AI suggestions when use_ai is set.
func WithSuggester(sg linking.Suggester) Option {
	return func(s *Service) {
		s.suggester = sg
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
