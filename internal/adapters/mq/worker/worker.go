// Package worker dispatches queued registration jobs to the time tracker.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/ttlink/internal/adapters/mq/queue"
	"github.com/okian/ttlink/internal/domain/dedupe"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

const (
	metricsUpdateInterval  = 5 * time.Second
	defaultRegisterTimeout = 30 * time.Second
	workerShutdownTimeout  = 5 * time.Second
	poolShutdownTimeout    = 30 * time.Second

	reasonCancelled = "cancelled"
	reasonShutdown  = "shutdown"
)

// Registrar writes one linked pair to the time tracker.
type Registrar interface {
	Register(ctx context.Context, pair model.Pair) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes registration jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for jobs read from a Queue.
type InMemoryWorker struct {
	queue     Queue
	registrar Registrar
	name      string

	limiter *rate.Limiter
	deduper dedupe.Deduper
	timeout time.Duration

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	processed *atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, registrar Registrar, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		registrar: registrar,
		name:      "worker",
		timeout:   defaultRegisterTimeout,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		processed: new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// NewLimiter builds the shared dispatch limiter. A rate of zero or less
// means no limit.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown signals the worker to stop and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.signal()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) signal() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// process drives one job through the tracker. The tracker is the only
// place outcomes are reported.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	if job.Done != nil {
		defer job.Done()
	}
	key := job.Pair.Key()

	if isClosed(job.Stop) {
		w.skip(ctx, job, reasonCancelled)
		return
	}
	// The copy that recorded the key owns the tracker item and always moves
	// it to a terminal state, so a dropped copy must not touch it.
	if w.deduper != nil && w.deduper.SeenAndRecord(ctx, job.Key()) {
		metrics.RecordErrorByComponent("worker", "duplicate_job")
		w.logger.Warn(ctx, "duplicate job dropped", logger.String("job", job.Key()))
		return
	}

	if w.limiter != nil {
		waitCtx, cancel := withStop(ctx, job.Stop)
		err := w.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			reason := reasonCancelled
			if ctx.Err() != nil {
				reason = reasonShutdown
			}
			w.skip(ctx, job, reason)
			return
		}
	}

	if err := job.Tracker.Start(key); err != nil {
		// the run was cancelled between the checks above and now
		w.logger.Debug(ctx, "job no longer pending", logger.String("job", job.Key()), logger.Error(err))
		return
	}

	metrics.AddRegistrationInFlight(1)
	defer metrics.AddRegistrationInFlight(-1)

	// a started registration finishes even if the run is cancelled meanwhile
	regCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	start := time.Now()
	err := w.registrar.Register(regCtx, job.Pair)
	metrics.RecordRegistrationLatency(float64(time.Since(start).Milliseconds()))
	w.processed.Add(1)

	if err != nil {
		metrics.RecordErrorByComponent("worker", "register")
		w.logger.Error(ctx, "registration failed",
			logger.String("run", job.RunID),
			logger.String("event", job.Pair.Event.UUID),
			logger.String("work_item", job.Pair.WorkItem.ID),
			logger.Error(err),
		)
		if ferr := job.Tracker.Fail(key, err.Error()); ferr != nil {
			w.logger.Error(ctx, "tracker rejected failure", logger.Error(ferr))
		}
		return
	}
	if serr := job.Tracker.Succeed(key); serr != nil {
		w.logger.Error(ctx, "tracker rejected success", logger.Error(serr))
	}
}

func (w *InMemoryWorker) skip(ctx context.Context, job queue.Job, reason string) { //nolint:gocritic // hugeParam
	if err := job.Tracker.Skip(job.Pair.Key(), reason); err != nil {
		w.logger.Debug(ctx, "skip ignored", logger.String("job", job.Key()), logger.Error(err))
	}
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// withStop returns a context that is also cancelled when stop closes.
func withStop(ctx context.Context, stop <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if stop == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Pool manages multiple workers sharing one limiter and deduper.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}
	stopped  atomic.Bool

	processed         *atomic.Int64
	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. opts apply to every
// worker, so a limiter or deduper passed here is shared.
func NewPool(workerCount int, q Queue, registrar Registrar, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		processed:         new(atomic.Int64),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		wopts := append([]Option{withCounter(p.processed)}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, registrar, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many registrations the pool has attempted.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics(ctx)
		}
	}
}

func (p *Pool) updateMetrics(ctx context.Context) {
	now := time.Now()
	total := p.processed.Load()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 && total > p.lastProcessed {
		p.logger.Debug(ctx, "registration throughput",
			logger.Float64("per_second", float64(total-p.lastProcessed)/elapsed))
	}
	if l, ok := p.queue.(interface{ Len(context.Context) int }); ok {
		metrics.UpdateQueueSize(l.Len(ctx))
	}
	p.lastProcessed = total
	p.lastProcessedTime = now
}

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.shutdown)
	for _, w := range p.workers {
		w.signal()
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue, lets workers drain what is already queued and
// then stops them. Workers still busy when ctx expires are abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			w.signal()
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
