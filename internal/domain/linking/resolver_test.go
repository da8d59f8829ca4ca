package linking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/okian/ttlink/internal/adapters/repository"
	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/internal/domain/ignore"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type stubSuggester struct {
	suggestions []linking.Suggestion
	err         error
	calls       atomic.Int32
}

func (s *stubSuggester) Suggest(_ context.Context, _ model.Event, _ []model.WorkItem) ([]linking.Suggestion, error) {
	s.calls.Add(1)
	return s.suggestions, s.err
}

var on = linking.Options{AutoLink: true}

func newStore() *history.Store {
	return history.NewStore(repository.NewMemoryHistory())
}

func TestResolveFromHistory(t *testing.T) {
	Convey("Given a history entry for Weekly Sync", t, func() {
		ctx := context.Background()
		store := newStore()
		w1 := model.WorkItem{ID: "w1", Name: "Meetings"}
		So(store.SetHistory(ctx, model.Event{UUID: "old", Name: "Weekly Sync"}, w1), ShouldBeNil)
		r := linking.NewResolver(store)

		Convey("When the work item is still in the catalogue", func() {
			cat := model.NewCatalogue([]model.WorkItem{w1})
			d := r.Resolve(ctx, model.Event{UUID: "e2", Name: "  weekly SYNC "}, cat, on)

			Convey("Then the event links from history", func() {
				So(d.Kind, ShouldEqual, model.DecisionLinked)
				So(d.Source, ShouldEqual, model.SourceHistory)
				So(d.WorkItem.ID, ShouldEqual, "w1")
				So(d.Event.UUID, ShouldEqual, "e2")
			})
		})

		Convey("When the work item was removed from the catalogue", func() {
			cat := model.NewCatalogue([]model.WorkItem{{ID: "w2"}})
			d := r.Resolve(ctx, model.Event{UUID: "e2", Name: "Weekly Sync"}, cat, on)

			Convey("Then the stale entry is a miss", func() {
				So(d.Kind, ShouldEqual, model.DecisionUnlinked)
				So(d.Reason, ShouldEqual, model.ReasonNoMatch)
			})
		})

		Convey("When auto-link is off", func() {
			cat := model.NewCatalogue([]model.WorkItem{w1})
			d := r.Resolve(ctx, model.Event{UUID: "e2", Name: "Weekly Sync"}, cat, linking.Options{})

			Convey("Then nothing is consulted", func() {
				So(d.Kind, ShouldEqual, model.DecisionUnlinked)
				So(d.Reason, ShouldEqual, model.ReasonAutoLinkDisabled)
			})
		})
	})
}

func TestResolveWithAI(t *testing.T) {
	Convey("Given an AI collaborator and no history", t, func() {
		ctx := context.Background()
		cat := model.NewCatalogue([]model.WorkItem{{ID: "w1"}, {ID: "w2"}})
		ev := model.Event{UUID: "e1", Name: "Design review"}

		Convey("When the top suggestion clears the threshold", func() {
			ai := &stubSuggester{suggestions: []linking.Suggestion{
				{EventUUID: "e1", WorkItemID: "w1", Confidence: 0.6},
				{EventUUID: "e1", WorkItemID: "w2", Confidence: 0.9},
				{EventUUID: "other", WorkItemID: "w1", Confidence: 1},
			}}
			r := linking.NewResolver(newStore(), linking.WithSuggester(ai))
			d := r.Resolve(ctx, ev, cat, linking.Options{AutoLink: true, UseAI: true})

			Convey("Then it links with source ai", func() {
				So(d.Kind, ShouldEqual, model.DecisionLinked)
				So(d.Source, ShouldEqual, model.SourceAI)
				So(d.WorkItem.ID, ShouldEqual, "w2")
			})
		})

		Convey("When the top suggestion is below the threshold", func() {
			ai := &stubSuggester{suggestions: []linking.Suggestion{{WorkItemID: "w1", Confidence: 0.69}}}
			r := linking.NewResolver(newStore(), linking.WithSuggester(ai))
			d := r.Resolve(ctx, ev, cat, linking.Options{AutoLink: true, UseAI: true})

			Convey("Then it falls through to no-match", func() {
				So(d.Kind, ShouldEqual, model.DecisionUnlinked)
				So(d.Reason, ShouldEqual, model.ReasonNoMatch)
			})
		})

		Convey("When the suggestion names an unknown work item", func() {
			ai := &stubSuggester{suggestions: []linking.Suggestion{{WorkItemID: "ghost", Confidence: 0.99}}}
			r := linking.NewResolver(newStore(), linking.WithSuggester(ai))
			d := r.Resolve(ctx, ev, cat, linking.Options{AutoLink: true, UseAI: true, ConfidenceThreshold: 0.5})

			Convey("Then it is ignored", func() {
				So(d.Kind, ShouldEqual, model.DecisionUnlinked)
			})
		})

		Convey("When the collaborator fails", func() {
			ai := &stubSuggester{err: errors.New("rate limited")}
			r := linking.NewResolver(newStore(), linking.WithSuggester(ai))
			d := r.Resolve(ctx, ev, cat, linking.Options{AutoLink: true, UseAI: true})

			Convey("Then the failure is not surfaced", func() {
				So(d.Kind, ShouldEqual, model.DecisionUnlinked)
				So(d.Reason, ShouldEqual, model.ReasonNoMatch)
			})
		})

		Convey("When AI is disabled", func() {
			ai := &stubSuggester{suggestions: []linking.Suggestion{{WorkItemID: "w1", Confidence: 1}}}
			r := linking.NewResolver(newStore(), linking.WithSuggester(ai))
			d := r.Resolve(ctx, ev, cat, on)

			Convey("Then the collaborator is never called", func() {
				So(d.Kind, ShouldEqual, model.DecisionUnlinked)
				So(ai.calls.Load(), ShouldEqual, 0)
			})
		})
	})
}

func TestResolveAll(t *testing.T) {
	Convey("Given time-off and work schedule rules", t, func() {
		ctx := context.Background()
		store := newStore()
		items := []model.WorkItem{
			{ID: "off", Name: "Vacation"},
			{ID: "sched", Name: "Office hours"},
			{ID: "w1", Name: "Meetings"},
		}
		cat := model.NewCatalogue(items)
		So(store.SetHistory(ctx, model.Event{Name: "Weekly Sync"}, items[2]), ShouldBeNil)
		So(store.SetHistory(ctx, model.Event{Name: "有給休暇"}, items[2]), ShouldBeNil)

		r := linking.NewResolver(store,
			linking.WithTimeOff(linking.TimeOffRule{
				NamePatterns: []ignore.Pattern{{Pattern: "休暇", MatchMode: ignore.MatchPartial}},
				WorkItemID:   "off",
			}),
			linking.WithWorkSchedule("sched"),
			linking.WithConcurrency(2),
		)
		events := []model.Event{
			{UUID: "e1", Name: "有給休暇"},
			{UUID: "e2", Name: "Weekly Sync"},
			{UUID: "e3", Name: "Remote", WorkingEventType: "remote"},
			{UUID: "e4", Name: "Coffee chat"},
		}

		Convey("When a full pass runs", func() {
			b, err := r.ResolveAll(ctx, events, cat, on)

			Convey("Then time-off beats history and the rest resolve in order", func() {
				So(err, ShouldBeNil)
				So(b.Decisions, ShouldHaveLength, 4)
				So(b.Decisions[0].Source, ShouldEqual, model.SourceTimeOff)
				So(b.Decisions[1].Source, ShouldEqual, model.SourceHistory)
				So(b.Decisions[2].Source, ShouldEqual, model.SourceWorkSchedule)
				So(b.Decisions[3].Kind, ShouldEqual, model.DecisionUnlinked)
				So(b.Linked, ShouldHaveLength, 3)
				So(b.Unlinked, ShouldHaveLength, 1)
				So(b.Unlinked[0].UUID, ShouldEqual, "e4")
				So(b.Counts[model.SourceHistory], ShouldEqual, 1)
			})
		})

		Convey("When auto-link is off", func() {
			b, err := r.ResolveAll(ctx, events, cat, linking.Options{})

			Convey("Then only the rules link", func() {
				So(err, ShouldBeNil)
				So(b.Decisions[0].Source, ShouldEqual, model.SourceTimeOff)
				So(b.Decisions[1].Reason, ShouldEqual, model.ReasonAutoLinkDisabled)
				So(b.Decisions[2].Source, ShouldEqual, model.SourceWorkSchedule)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			b, err := r.ResolveAll(cctx, events, cat, on)

			Convey("Then every event is unlinked as cancelled", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(b.Linked, ShouldBeEmpty)
				So(b.Unlinked, ShouldHaveLength, 4)
				So(b.Decisions[2].Reason, ShouldEqual, model.ReasonCancelled)
				So(b.Decisions[2].Event.UUID, ShouldEqual, "e3")
			})
		})
	})
}
