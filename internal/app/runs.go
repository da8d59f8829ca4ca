package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ttlink/internal/adapters/mq/queue"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/internal/domain/registration"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

// Skip reasons recorded on tracker items.
const (
	SkipDeselected = "deselected"
	SkipQueueFull  = "queue full"
	SkipCancelled  = "cancelled"
)

// HistoryDumpID identifies a failed history flush in RunStatus.HistoryErrors.
const HistoryDumpID = "history"


type run struct {
	id      string
	tracker *registration.Tracker
	stop    chan struct{}
	once    sync.Once
	started time.Time

	mu         sync.Mutex
	done       time.Time
	cancelled  bool
	historyErr []registration.ItemError
}

func (r *run) cancel() bool {
	first := false
	r.once.Do(func() {
		close(r.stop)
		first = true
	})
	if first {
		r.mu.Lock()
		r.cancelled = true
		r.mu.Unlock()
	}
	return first
}

func (r *run) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.done.IsZero()
}

// RunStatus is a snapshot of a registration run.
type RunStatus struct {
	ID        string
	Progress  registration.Progress
	Items     []registration.Item
	Failures  []registration.ItemError
	Complete  bool
	Cancelled bool

	// HistoryErrors lists registered pairs whose link could not be
	// recorded to history, and a failed history flush under HistoryDumpID.
	HistoryErrors []registration.ItemError

	StartedAt  time.Time
	FinishedAt time.Time
}

// StartRun registers pairs with the time tracker in the background. The
// skipped pairs are tracked as deselected and never sent. The returned id
// is used with Run and CancelRun.
func (s *Service) StartRun(ctx context.Context, pairs, skipped []model.Pair) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if s.pool == nil {
		return "", ErrNoRegistrar
	}
	if len(pairs) == 0 {
		return "", ErrEmptyRun
	}

	all := make([]model.Pair, 0, len(pairs)+len(skipped))
	all = append(all, pairs...)
	all = append(all, skipped...)
	tracker, err := registration.NewTracker(all)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	for _, p := range skipped {
		_ = tracker.Skip(p.Key(), SkipDeselected)
	}

	r := &run{
		id:      uuid.NewString(),
		tracker: tracker,
		stop:    make(chan struct{}),
		started: time.Now(),
	}
	s.addRun(r)

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		job := queue.Job{RunID: r.id, Pair: p, Tracker: tracker, Stop: r.stop, Done: wg.Done}
		if !s.queue.Enqueue(ctx, job) {
			wg.Done()
			_ = tracker.Skip(p.Key(), SkipQueueFull)
		}
	}

	s.logger.Info(ctx, "registration run started",
		logger.String("run", r.id),
		logger.Int("pairs", len(pairs)),
		logger.Int("deselected", len(skipped)))

	go func() {
		wg.Wait()
		s.finishRun(context.WithoutCancel(ctx), r)
	}()
	return r.id, nil
}

// finishRun records history for confirmed automatic links and flushes it
// once for the whole run. Storage failures are kept on the run.
func (s *Service) finishRun(ctx context.Context, r *run) {
	var failed []registration.ItemError
	learned := 0
	for _, it := range r.tracker.Items() {
		if it.State != registration.Success {
			continue
		}
		switch it.Pair.Source {
		case model.SourceHistory, model.SourceAI:
		default:
			continue
		}
		if err := s.history.SetHistory(ctx, it.Pair.Event, it.Pair.WorkItem); err != nil {
			s.logger.Error(ctx, "history not updated",
				logger.String("run", r.id),
				logger.String("event", it.Pair.Event.UUID),
				logger.Error(err))
			failed = append(failed, registration.ItemError{ID: it.Key, Label: it.Label(), Message: err.Error()})
			continue
		}
		learned++
	}
	if learned > 0 {
		if err := s.history.Dump(ctx); err != nil {
			s.logger.Error(ctx, "history dump after run failed", logger.String("run", r.id), logger.Error(err))
			failed = append(failed, registration.ItemError{ID: HistoryDumpID, Label: "history dump", Message: err.Error()})
		}
	}

	r.mu.Lock()
	r.done = time.Now()
	r.historyErr = failed
	cancelled := r.cancelled
	r.mu.Unlock()

	p := r.tracker.Progress()
	status := "success"
	switch {
	case cancelled:
		status = "cancelled"
	case p.Error > 0 || len(failed) > 0:
		status = "partial"
	}
	metrics.RecordRegistrationRun(status)
	s.logger.Info(ctx, "registration run finished",
		logger.String("run", r.id),
		logger.String("status", status),
		logger.Int("success", p.Success),
		logger.Int("error", p.Error),
		logger.Int("skipped", p.Skipped),
		logger.Int("history_errors", len(failed)),
		logger.Duration("elapsed", time.Since(r.started)))
}

// Run returns the status of a run.
func (s *Service) Run(id string) (RunStatus, bool) {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return RunStatus{}, false
	}
	r.mu.Lock()
	st := RunStatus{
		ID:         r.id,
		StartedAt:  r.started,
		FinishedAt: r.done,
		Cancelled:  r.cancelled,
	}
	st.HistoryErrors = append(st.HistoryErrors, r.historyErr...)
	r.mu.Unlock()
	st.Progress = r.tracker.Progress()
	st.Items = r.tracker.Items()
	st.Failures = r.tracker.Failures()
	st.Complete = r.tracker.Complete()
	return st, true
}

// CancelRun stops dispatch of the pairs not yet sent. Pairs already being
// registered finish normally.
func (s *Service) CancelRun(ctx context.Context, id string) error {
	s.mu.RLock()
	r, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if r.finished() || !r.cancel() {
		return fmt.Errorf("%w: %s", ErrRunFinished, id)
	}
	n := r.tracker.SkipPending(SkipCancelled)
	s.logger.Info(ctx, "registration run cancelled", logger.String("run", id), logger.Int("skipped", n))
	return nil
}

// addRun stores r and forgets the oldest finished runs beyond the cap.
func (s *Service) addRun(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.id] = r
	s.runOrder = append(s.runOrder, r.id)
	if len(s.runOrder) <= maxFinishedRuns {
		return
	}
	kept := s.runOrder[:0]
	excess := len(s.runOrder) - maxFinishedRuns
	for _, id := range s.runOrder {
		if excess > 0 && s.runs[id].finished() {
			delete(s.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.runOrder = kept
}
