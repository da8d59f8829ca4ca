package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/ttlink/internal/app"
	"github.com/okian/ttlink/internal/adapters/repository"
	"github.com/okian/ttlink/internal/config"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/internal/domain/registration"
	"github.com/okian/ttlink/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeRegistrar struct {
	mu      sync.Mutex
	pairs   []model.Pair
	failFor map[string]error
	gate    chan struct{}
	called  chan struct{}
}

func (f *fakeRegistrar) Register(_ context.Context, p model.Pair) error {
	if f.called != nil {
		f.called <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[p.Event.UUID]; err != nil {
		return err
	}
	f.pairs = append(f.pairs, p)
	return nil
}

func (f *fakeRegistrar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pairs)
}

var monday = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func event(uuid, name string, offset time.Duration) model.Event {
	start := monday.Add(offset)
	return model.Event{UUID: uuid, Name: name, Start: start, End: start.Add(30 * time.Minute)}
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.HistoryBackend = "memory"
	cfg.RegistrationWorkers = 2
	cfg.RegistrationRatePerSecond = 0
	return cfg
}

func startService(cfg *config.Config, reg *fakeRegistrar, backend *repository.MemoryHistory) *service.Service {
	opts := []service.Option{service.WithConfig(cfg), service.WithHistoryBackend(backend)}
	if reg != nil {
		opts = append(opts, service.WithRegistrar(reg))
	}
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func waitRun(svc *service.Service, id string) service.RunStatus {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, ok := svc.Run(id)
		if ok && !st.FinishedAt.IsZero() {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := svc.Run(id)
	return st
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithConfig(testConfig()))

		Convey("Then every operation reports ErrNotStarted", func() {
			_, err := svc.AutoLink(context.Background(), nil, nil)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.StartRun(context.Background(), nil, nil)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.History(), ShouldBeNil)
			So(svc.GetStats().Started, ShouldBeFalse)
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given a started service", t, func() {
		backend := repository.NewMemoryHistory()
		svc := startService(testConfig(), &fakeRegistrar{}, backend)

		Convey("Then stats describe it", func() {
			st := svc.GetStats()
			So(st.Started, ShouldBeTrue)
			So(st.Workers, ShouldEqual, 2)
			So(st.HistorySize, ShouldEqual, 0)
			So(st.AutoLink, ShouldBeTrue)
			So(st.UseAI, ShouldBeFalse)
		})

		Convey("When stopped", func() {
			So(svc.Stop(context.Background()), ShouldBeNil)

			Convey("Then history is flushed once and a second Stop is a no-op", func() {
				So(backend.Saves(), ShouldEqual, 1)
				So(svc.Stop(context.Background()), ShouldBeNil)
				So(backend.Saves(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given an invalid sweep schedule", t, func() {
		cfg := testConfig()
		cfg.HistorySweepSchedule = "every now and then"
		svc := service.New(service.WithConfig(cfg), service.WithHistoryBackend(repository.NewMemoryHistory()))

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_AutoLink(t *testing.T) {
	Convey("Given a service with ignore, time off and schedule rules", t, func() {
		cfg := testConfig()
		cfg.IgnorableEvents = []config.IgnorableEvent{{Pattern: "lunch", MatchMode: "partial"}}
		cfg.TimeOff = config.TimeOff{
			NamePatterns: []config.IgnorableEvent{{Pattern: "Vacation", MatchMode: "prefix"}},
			WorkItemID:   "w-off",
		}
		cfg.WorkScheduleWorkItemID = "w-sched"
		svc := startService(cfg, nil, repository.NewMemoryHistory())
		defer svc.Stop(context.Background())

		items := []model.WorkItem{{ID: "w1", Name: "Meetings"}, {ID: "w-off", Name: "Time off"}, {ID: "w-sched", Name: "Working hours"}}
		ctx := context.Background()

		Convey("When nothing is passed", func() {
			_, err := svc.AutoLink(ctx, nil, items)

			Convey("Then the pass is rejected for missing data", func() {
				var verr *linking.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Reason, ShouldEqual, linking.ReasonNoData)
			})
		})

		Convey("When there are no work items", func() {
			_, err := svc.AutoLink(ctx, []model.Event{event("e1", "Standup", 0)}, nil)

			Convey("Then the pass is rejected for missing settings", func() {
				So(errors.Is(err, linking.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When a mixed day is linked", func() {
			private := event("p1", "Doctor", time.Hour)
			private.IsPrivate = true
			cancelled := event("c1", "Retro", 2*time.Hour)
			cancelled.IsCancelled = true
			shift := event("s1", "Office", 0)
			shift.WorkingEventType = "start"

			events := []model.Event{
				event("e1", "Standup", 0),
				event("l1", "Team lunch", 3*time.Hour),
				event("v1", "Vacation day", 4*time.Hour),
				event("v2", "Vacation half", 4*time.Hour),
				private, cancelled, shift,
			}
			report, err := svc.AutoLink(ctx, events, items)
			So(err, ShouldBeNil)

			Convey("Then private and cancelled events are excluded", func() {
				So(report.Excluded, ShouldHaveLength, 2)
			})

			Convey("Then ignore patterns drop matching events", func() {
				So(report.Ignored, ShouldHaveLength, 1)
				So(report.Ignored[0].Event.UUID, ShouldEqual, "l1")
			})

			Convey("Then rule based links are made and overlapping ones flagged", func() {
				So(report.Counts[model.SourceTimeOff], ShouldEqual, 2)
				So(report.Counts[model.SourceWorkSchedule], ShouldEqual, 1)
				So(report.Duplicates, ShouldHaveLength, 1)
				So(report.Duplicates[0].Pair.Event.UUID, ShouldEqual, "v2")
				So(report.Linked, ShouldHaveLength, 2)
			})

			Convey("Then the rest is unlinked", func() {
				So(report.Unlinked, ShouldHaveLength, 1)
				So(report.Unlinked[0].UUID, ShouldEqual, "e1")
			})

			Convey("Then every remaining event has a decision", func() {
				So(report.Decisions, ShouldHaveLength, 5)
			})
		})
	})
}

func TestService_WeeklySync(t *testing.T) {
	Convey("Given an empty history and auto link without AI", t, func() {
		backend := repository.NewMemoryHistory()
		reg := &fakeRegistrar{}
		svc := startService(testConfig(), reg, backend)
		defer svc.Stop(context.Background())

		ctx := context.Background()
		items := []model.WorkItem{{ID: "w1", Name: "Sync"}}
		first := event("e1", "Weekly Sync", 0)

		report, err := svc.AutoLink(ctx, []model.Event{first}, items)
		So(err, ShouldBeNil)

		Convey("Then the first occurrence is unlinked with no match", func() {
			So(report.Linked, ShouldBeEmpty)
			So(report.Decisions, ShouldHaveLength, 1)
			So(report.Decisions[0].Reason, ShouldEqual, model.ReasonNoMatch)
		})

		Convey("When the user picks w1 for it", func() {
			sel, err := svc.SelectWorkItem(ctx, "e1", "w1", report.Unlinked, items)
			So(err, ShouldBeNil)
			So(sel.Success, ShouldBeTrue)

			Convey("Then the choice is persisted", func() {
				So(backend.Saves(), ShouldEqual, 1)
				So(svc.History(), ShouldHaveLength, 1)
				So(svc.History()[0].WorkItemID, ShouldEqual, "w1")
			})

			Convey("Then next week's occurrence links from history", func() {
				next := event("e2", " weekly  SYNC", 7*24*time.Hour)
				again, err := svc.AutoLink(ctx, []model.Event{next}, items)
				So(err, ShouldBeNil)
				So(again.Linked, ShouldHaveLength, 1)
				So(again.Linked[0].WorkItem.ID, ShouldEqual, "w1")
				So(again.Linked[0].Source, ShouldEqual, model.SourceHistory)

				Convey("And registering it bumps the history use count", func() {
					id, err := svc.StartRun(ctx, again.Linked, nil)
					So(err, ShouldBeNil)
					st := waitRun(svc, id)
					So(st.Progress.Success, ShouldEqual, 1)
					So(reg.count(), ShouldEqual, 1)
					So(svc.History()[0].UseCount, ShouldEqual, 2)
				})
			})
		})

		Convey("When the user picks an unknown event", func() {
			sel, err := svc.SelectWorkItem(ctx, "nope", "w1", report.Unlinked, items)

			Convey("Then the selection fails without touching history", func() {
				So(err, ShouldBeNil)
				So(sel.Success, ShouldBeFalse)
				So(sel.Message(), ShouldEqual, linking.MsgEventNotFound)
				So(backend.Saves(), ShouldEqual, 0)
			})
		})

		Convey("When the backend is failing", func() {
			backend.SetFailure(errors.New("disk full"))
			_, err := svc.SelectWorkItem(ctx, "e1", "w1", report.Unlinked, items)
			backend.SetFailure(nil)

			Convey("Then the storage error is returned", func() {
				So(errors.Is(err, linking.ErrStorage), ShouldBeTrue)
			})
		})
	})
}

func TestService_Runs(t *testing.T) {
	Convey("Given a service with a time tracker", t, func() {
		ctx := context.Background()
		items := []model.WorkItem{{ID: "w1", Name: "Dev"}, {ID: "w2", Name: "Ops"}}
		pair := func(uuid string, wi model.WorkItem, offset time.Duration) model.Pair {
			return model.Pair{Event: event(uuid, "Task "+uuid, offset), WorkItem: wi, Source: model.SourceManual}
		}

		Convey("When a run has a failing pair and a deselected one", func() {
			reg := &fakeRegistrar{failFor: map[string]error{"e2": errors.New("StatusCode: 500, Message: boom")}}
			svc := startService(testConfig(), reg, repository.NewMemoryHistory())
			defer svc.Stop(ctx)

			id, err := svc.StartRun(ctx,
				[]model.Pair{pair("e1", items[0], 0), pair("e2", items[1], time.Hour)},
				[]model.Pair{pair("e3", items[0], 2*time.Hour)})
			So(err, ShouldBeNil)
			st := waitRun(svc, id)

			Convey("Then each pair ends in its own state", func() {
				So(st.Complete, ShouldBeTrue)
				So(st.Progress.Total, ShouldEqual, 3)
				So(st.Progress.Success, ShouldEqual, 1)
				So(st.Progress.Error, ShouldEqual, 1)
				So(st.Progress.Skipped, ShouldEqual, 1)
			})

			Convey("Then the failure is reported with its label and message", func() {
				So(st.Failures, ShouldHaveLength, 1)
				So(st.Failures[0].Label, ShouldContainSubstring, "Task e2")
				So(st.Failures[0].Message, ShouldContainSubstring, "StatusCode: 500")
			})

			Convey("Then manual pairs are not relearned", func() {
				So(svc.History(), ShouldBeEmpty)
			})

			Convey("Then cancelling the finished run is refused", func() {
				So(errors.Is(svc.CancelRun(ctx, id), service.ErrRunFinished), ShouldBeTrue)
			})
		})

		Convey("When a run is cancelled while the first pair is in flight", func() {
			cfg := testConfig()
			cfg.RegistrationWorkers = 1
			reg := &fakeRegistrar{gate: make(chan struct{}), called: make(chan struct{}, 3)}
			svc := startService(cfg, reg, repository.NewMemoryHistory())
			defer svc.Stop(ctx)

			id, err := svc.StartRun(ctx, []model.Pair{
				pair("e1", items[0], 0),
				pair("e2", items[0], time.Hour),
				pair("e3", items[1], 2*time.Hour),
			}, nil)
			So(err, ShouldBeNil)
			<-reg.called
			So(svc.CancelRun(ctx, id), ShouldBeNil)
			close(reg.gate)
			st := waitRun(svc, id)

			Convey("Then the in flight pair finishes and the rest are skipped", func() {
				So(st.Cancelled, ShouldBeTrue)
				So(st.Progress.Success, ShouldEqual, 1)
				So(st.Progress.Skipped, ShouldEqual, 2)
				for _, it := range st.Items[1:] {
					So(it.State, ShouldEqual, registration.Skipped)
					So(it.Detail, ShouldEqual, service.SkipCancelled)
				}
			})
		})

		Convey("When the input is not usable", func() {
			svc := startService(testConfig(), &fakeRegistrar{}, repository.NewMemoryHistory())
			defer svc.Stop(ctx)

			Convey("Then empty and duplicate runs are rejected", func() {
				_, err := svc.StartRun(ctx, nil, nil)
				So(errors.Is(err, service.ErrEmptyRun), ShouldBeTrue)
				p := pair("e1", items[0], 0)
				_, err = svc.StartRun(ctx, []model.Pair{p, p}, nil)
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			})

			Convey("Then unknown runs are reported", func() {
				_, ok := svc.Run("missing")
				So(ok, ShouldBeFalse)
				So(errors.Is(svc.CancelRun(ctx, "missing"), service.ErrRunNotFound), ShouldBeTrue)
			})
		})

		Convey("When history cannot be saved after an automatic link is registered", func() {
			backend := repository.NewMemoryHistory()
			svc := startService(testConfig(), &fakeRegistrar{}, backend)
			defer svc.Stop(ctx)

			backend.SetFailure(errors.New("disk full"))
			p := pair("e1", items[0], 0)
			p.Source = model.SourceHistory
			id, err := svc.StartRun(ctx, []model.Pair{p}, nil)
			So(err, ShouldBeNil)
			st := waitRun(svc, id)
			backend.SetFailure(nil)

			Convey("Then the pair is registered but the run carries the storage error", func() {
				So(st.Progress.Success, ShouldEqual, 1)
				So(st.Failures, ShouldBeEmpty)
				So(st.HistoryErrors, ShouldHaveLength, 1)
				So(st.HistoryErrors[0].ID, ShouldEqual, service.HistoryDumpID)
				So(st.HistoryErrors[0].Message, ShouldContainSubstring, "disk full")
				So(backend.Saves(), ShouldEqual, 0)
			})
		})

		Convey("When no time tracker is configured", func() {
			svc := startService(testConfig(), nil, repository.NewMemoryHistory())
			defer svc.Stop(ctx)

			Convey("Then runs cannot start", func() {
				_, err := svc.StartRun(ctx, []model.Pair{pair("e1", items[0], 0)}, nil)
				So(errors.Is(err, service.ErrNoRegistrar), ShouldBeTrue)
			})
		})
	})
}

func TestService_History(t *testing.T) {
	Convey("Given a service with one learned link", t, func() {
		ctx := context.Background()
		svc := startService(testConfig(), nil, repository.NewMemoryHistory())
		defer svc.Stop(ctx)

		items := []model.WorkItem{{ID: "w1", Name: "Sync"}}
		ev := event("e1", "Weekly Sync", 0)
		_, err := svc.SelectWorkItem(ctx, "e1", "w1", []model.Event{ev}, items)
		So(err, ShouldBeNil)

		Convey("When it is exported and imported into a fresh service", func() {
			var buf bytes.Buffer
			So(svc.ExportHistory(&buf), ShouldBeNil)

			other := startService(testConfig(), nil, repository.NewMemoryHistory())
			defer other.Stop(ctx)
			n, err := other.ImportHistory(ctx, &buf, false)

			Convey("Then the entry carries over", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(other.History()[0].Signature, ShouldEqual, "weekly sync")
			})
		})

		Convey("When it is deleted", func() {
			ok, err := svc.DeleteHistory(ctx, "weekly sync")

			Convey("Then it is gone", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(svc.History(), ShouldBeEmpty)
				ok, err = svc.DeleteHistory(ctx, "weekly sync")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the signature is empty", func() {
			_, err := svc.DeleteHistory(ctx, "")

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			})
		})
	})
}
