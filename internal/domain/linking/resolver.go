// Package linking resolves events to work items.
//
// Resolve applies history and then the optional AI collaborator to a single
// event. ResolveAll runs a whole pass: the time-off rule first, then history,
// the work schedule rule and AI, leaving the rest for manual selection.
package linking

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ttlink/internal/domain/ignore"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	"github.com/okian/ttlink/pkg/metrics"
)

// HistoryReader is the read side of the history store.
type HistoryReader interface {
	Signature(ev model.Event) string
	Lookup(ctx context.Context, signature string) (string, bool)
}

// Suggestion is one ranked AI proposal.
type Suggestion struct {
	EventUUID  string
	WorkItemID string
	Confidence float64
	Reason     string
}

// Suggester proposes work items for an event. Implementations are best
// effort; errors only cause the resolver to fall through.
type Suggester interface {
	Suggest(ctx context.Context, ev model.Event, candidates []model.WorkItem) ([]Suggestion, error)
}

// Resolver produces link decisions. It is safe for concurrent use.
type Resolver struct {
	history      HistoryReader
	suggester    Suggester
	timeOff      TimeOffRule
	scheduleItem string
	concurrency  int
	log          logger.Logger
}

// NewResolver creates a Resolver reading from history.
func NewResolver(history HistoryReader, opts ...Option) *Resolver {
	r := &Resolver{
		history:     history,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("linking")
	}
	return r
}

// Resolve decides a single event: history, then AI, then unlinked.
func (r *Resolver) Resolve(ctx context.Context, ev model.Event, cat *model.Catalogue, opts Options) model.Decision {
	d := r.resolve(ctx, ev, cat, opts, false)
	recordDecision(d)
	return d
}

func (r *Resolver) resolve(ctx context.Context, ev model.Event, cat *model.Catalogue, opts Options, rules bool) model.Decision {
	if rules {
		if d, ok := r.fromTimeOff(ev, cat); ok {
			return d
		}
	}
	if opts.AutoLink {
		if d, ok := r.fromHistory(ctx, ev, cat); ok {
			return d
		}
	}
	if rules {
		if d, ok := r.fromSchedule(ev, cat); ok {
			return d
		}
	}
	if !opts.AutoLink {
		return model.Unlinked(ev, model.ReasonAutoLinkDisabled)
	}
	if opts.UseAI && r.suggester != nil {
		if d, ok := r.fromAI(ctx, ev, cat, opts.threshold()); ok {
			return d
		}
	}
	return model.Unlinked(ev, model.ReasonNoMatch)
}

func (r *Resolver) fromHistory(ctx context.Context, ev model.Event, cat *model.Catalogue) (model.Decision, bool) {
	if r.history == nil {
		return model.Decision{}, false
	}
	sig := r.history.Signature(ev)
	if sig == "" {
		return model.Decision{}, false
	}
	id, ok := r.history.Lookup(ctx, sig)
	if !ok {
		return model.Decision{}, false
	}
	wi, ok := cat.Get(id)
	if !ok {
		r.log.Debug(ctx, "stale history entry",
			logger.String("signature", sig),
			logger.String("work_item_id", id))
		return model.Decision{}, false
	}
	return model.Linked(ev, wi, model.SourceHistory), true
}

func (r *Resolver) fromTimeOff(ev model.Event, cat *model.Catalogue) (model.Decision, bool) {
	if len(r.timeOff.NamePatterns) == 0 {
		return model.Decision{}, false
	}
	if _, ok := ignore.First(r.timeOff.NamePatterns, ev.Name); !ok {
		return model.Decision{}, false
	}
	wi, ok := cat.Get(r.timeOff.WorkItemID)
	if !ok {
		return model.Decision{}, false
	}
	return model.Linked(ev, wi, model.SourceTimeOff), true
}

func (r *Resolver) fromSchedule(ev model.Event, cat *model.Catalogue) (model.Decision, bool) {
	if r.scheduleItem == "" || ev.WorkingEventType == "" {
		return model.Decision{}, false
	}
	wi, ok := cat.Get(r.scheduleItem)
	if !ok {
		return model.Decision{}, false
	}
	return model.Linked(ev, wi, model.SourceWorkSchedule), true
}

func (r *Resolver) fromAI(ctx context.Context, ev model.Event, cat *model.Catalogue, threshold float64) (model.Decision, bool) {
	start := time.Now()
	suggestions, err := r.suggester.Suggest(ctx, ev, cat.Items())
	metrics.RecordSuggestLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordSuggestFailure()
		r.log.Warn(ctx, "ai suggestion failed", logger.String("event", ev.UUID), logger.Error(err))
		return model.Decision{}, false
	}

	candidates := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.EventUUID != "" && s.EventUUID != ev.UUID {
			continue
		}
		if !cat.Has(s.WorkItemID) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return model.Decision{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	top := candidates[0]
	if top.Confidence < threshold {
		r.log.Debug(ctx, "ai suggestion below threshold",
			logger.String("event", ev.UUID),
			logger.Float64("confidence", top.Confidence),
			logger.Float64("threshold", threshold))
		return model.Decision{}, false
	}
	wi, _ := cat.Get(top.WorkItemID)
	return model.Linked(ev, wi, model.SourceAI), true
}

// Batch is the result of ResolveAll. Decisions keep input order.
type Batch struct {
	Decisions []model.Decision
	Linked    []model.Pair
	Unlinked  []model.Event
	Counts    map[model.Source]int
}

// ResolveAll resolves events concurrently. On cancellation the events not
// yet resolved are returned unlinked with reason "cancelled" together with
// the context error.
func (r *Resolver) ResolveAll(ctx context.Context, events []model.Event, cat *model.Catalogue, opts Options) (Batch, error) {
	decisions := make([]model.Decision, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ev := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				decisions[i] = model.Unlinked(ev, model.ReasonCancelled)
				return err
			}
			decisions[i] = r.resolve(gctx, ev, cat, opts, true)
			return nil
		})
	}
	err := g.Wait()

	b := Batch{Decisions: decisions, Counts: make(map[model.Source]int)}
	for _, d := range decisions {
		recordDecision(d)
		if p, ok := d.Pair(); ok {
			b.Linked = append(b.Linked, p)
			b.Counts[p.Source]++
			continue
		}
		b.Unlinked = append(b.Unlinked, d.Event)
	}
	r.log.Info(ctx, "resolution pass finished",
		logger.Int("events", len(events)),
		logger.Int("linked", len(b.Linked)),
		logger.Int("unlinked", len(b.Unlinked)))
	return b, err
}

func recordDecision(d model.Decision) {
	source := string(d.Source)
	if d.Kind != model.DecisionLinked {
		source = d.Reason
	}
	metrics.RecordDecision(d.Kind.String(), source)
}
