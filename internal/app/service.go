// Package service wires the linking engine together: history, resolver,
// duplicate guard and the registration worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/ttlink/internal/adapters/mq/queue"
	"github.com/okian/ttlink/internal/adapters/mq/worker"
	"github.com/okian/ttlink/internal/adapters/repository"
	"github.com/okian/ttlink/internal/config"
	"github.com/okian/ttlink/internal/domain/dedupe"
	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/internal/domain/ignore"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

const (
	maxFinishedRuns = 100
	stopTimeout     = 10 * time.Second
)

// Service owns the long lived components. Start must be called before any
// other method.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	backend   history.Backend
	registrar worker.Registrar
	suggester linking.Suggester

	history  *history.Store
	resolver *linking.Resolver
	patterns []ignore.Pattern
	deduper  dedupe.Deduper
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	cron     *cron.Cron

	runs     map[string]*run
	runOrder []string

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Stats is a snapshot for monitoring.
type Stats struct {
	Started     bool `json:"started"`
	HistorySize int  `json:"historySize"`
	Runs        int  `json:"runs"`
	ActiveRuns  int  `json:"activeRuns"`
	QueueLength int  `json:"queueLength"`
	Workers     int  `json:"workers"`
	DedupeSize  int  `json:"dedupeSize"`
	AutoLink    bool `json:"autoLink"`
	UseAI       bool `json:"useAi"`
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:  config.New(),
		runs: make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens history, loads it and starts the worker pool and the history
// sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	if s.backend == nil {
		b, err := repository.Open(cfg.HistoryBackend, cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history backend: %w", err)
		}
		s.backend = b
	}
	s.history = history.NewStore(s.backend,
		history.WithMaxSize(cfg.HistoryMaxSize),
		history.WithRetention(cfg.Retention()),
		history.WithOrganizerInSignature(cfg.HistorySignatureOrganizer),
	)
	if err := s.history.Load(ctx); err != nil {
		return err
	}

	s.patterns = toPatterns(cfg.IgnorableEvents)
	s.resolver = linking.NewResolver(s.history,
		linking.WithSuggester(s.suggester),
		linking.WithTimeOff(linking.TimeOffRule{
			NamePatterns: toPatterns(cfg.TimeOff.NamePatterns),
			WorkItemID:   cfg.TimeOff.WorkItemID,
		}),
		linking.WithWorkSchedule(cfg.WorkScheduleWorkItemID),
		linking.WithConcurrency(cfg.AIMaxConcurrent*2),
	)

	s.deduper = dedupe.NewInMemoryDeduper()
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.RegistrationQueueSize))

	// workers outlive the Start ctx; Stop cancels them
	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(cfg.HistorySweepSchedule, func() { s.sweep(poolCtx) }); err != nil {
		cancel()
		return fmt.Errorf("history sweep schedule %q: %w", cfg.HistorySweepSchedule, err)
	}
	s.cancel = cancel

	if s.registrar != nil {
		s.pool = worker.NewPool(cfg.RegistrationWorkers, s.queue, s.registrar,
			worker.WithLimiter(worker.NewLimiter(cfg.RegistrationRatePerSecond)),
			worker.WithDeduper(s.deduper),
		)
		s.pool.Start(poolCtx)
	}
	s.cron.Start()

	s.started = true
	s.logger.Info(ctx, "linking service started",
		logger.String("history_backend", cfg.HistoryBackend),
		logger.Int("history_entries", s.history.Size()),
		logger.Bool("registration", s.pool != nil),
		logger.Bool("ai", s.suggester != nil && cfg.UseAI),
	)
	return nil
}

// Stop drains the registration queue, flushes history and releases the
// backend.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping linking service...")

	<-s.cron.Stop().Done()

	var errs []error
	if s.pool != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		if err := s.pool.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	} else {
		_ = s.queue.Close()
	}
	s.cancel()

	if err := s.history.Dump(ctx); err != nil {
		errs = append(errs, err)
	}
	s.history.Close()
	if closer, ok := s.backend.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.started = false
	s.logger.Info(ctx, "linking service stopped")
	return errors.Join(errs...)
}

func (s *Service) sweep(ctx context.Context) {
	n := s.history.Prune(ctx)
	if n == 0 {
		return
	}
	if err := s.history.Dump(ctx); err != nil {
		s.logger.Error(ctx, "history sweep dump failed", logger.Error(err))
	}
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:  s.started,
		AutoLink: s.cfg.AutoLink,
		UseAI:    s.cfg.UseAI && s.suggester != nil,
		Runs:     len(s.runs),
	}
	if !s.started {
		return st
	}
	for _, r := range s.runs {
		if !r.finished() {
			st.ActiveRuns++
		}
	}
	st.HistorySize = s.history.Size()
	st.QueueLength = s.queue.Len(context.Background())
	st.DedupeSize = int(s.deduper.Size())
	if s.pool != nil {
		st.Workers = s.pool.Size()
	}

	metrics.UpdateHistorySize(st.HistorySize)
	metrics.UpdateQueueSize(st.QueueLength)
	return st
}

func toPatterns(in []config.IgnorableEvent) []ignore.Pattern {
	out := make([]ignore.Pattern, 0, len(in))
	for _, p := range in {
		out = append(out, ignore.Pattern{Pattern: p.Pattern, MatchMode: ignore.MatchMode(p.MatchMode)})
	}
	return out
}
