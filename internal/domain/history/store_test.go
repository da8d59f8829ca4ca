package history_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeBackend struct {
	mu    sync.Mutex
	saved []history.Entry
	saves int
	fail  error
}

func (b *fakeBackend) Save(_ context.Context, entries []history.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.saved = append([]history.Entry(nil), entries...)
	b.saves++
	return nil
}

func (b *fakeBackend) Load(_ context.Context) ([]history.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	return append([]history.Entry(nil), b.saved...), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newClock() *clock { return &clock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)} }
func weeklySync(name string) model.Event { return model.Event{UUID: name, Name: "Weekly Sync"} }
func item(id string) model.WorkItem { return model.WorkItem{ID: id, Name: "item " + id} }

func TestStoreWriteThenRead(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		backend := &fakeBackend{}
		clk := newClock()
		s := history.NewStore(backend, history.WithClock(clk.now))

		Convey("When the same signature is written twice and dumped", func() {
			So(s.SetHistory(ctx, weeklySync("e1"), item("w1")), ShouldBeNil)
			clk.advance(time.Minute)
			So(s.SetHistory(ctx, model.Event{UUID: "e2", Name: "weekly   SYNC"}, item("w2")), ShouldBeNil)
			So(s.Dump(ctx), ShouldBeNil)

			Convey("Then the last write wins", func() {
				id, ok := s.Lookup(ctx, "weekly sync")
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "w2")
				So(s.Size(), ShouldEqual, 1)
				So(backend.saved, ShouldHaveLength, 1)
				So(backend.saved[0].WorkItemID, ShouldEqual, "w2")
				So(backend.saved[0].UseCount, ShouldEqual, 1)
			})

			Convey("Then a fresh store loads the dumped state", func() {
				other := history.NewStore(backend)
				So(other.Load(ctx), ShouldBeNil)
				id, ok := other.Lookup(ctx, "weekly sync")
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "w2")
			})
		})

		Convey("When the same link is confirmed repeatedly", func() {
			for i := 0; i < 3; i++ {
				So(s.SetHistory(ctx, weeklySync("e1"), item("w1")), ShouldBeNil)
			}

			Convey("Then the use count grows", func() {
				e, ok := s.Get("weekly sync")
				So(ok, ShouldBeTrue)
				So(e.UseCount, ShouldEqual, 3)
				So(e.EventName, ShouldEqual, "Weekly Sync")
			})
		})

		Convey("When the event has an empty subject", func() {
			err := s.SetHistory(ctx, model.Event{UUID: "blank", Name: "  "}, item("w1"))

			Convey("Then the write is rejected", func() {
				So(errors.Is(err, history.ErrEmptySignature), ShouldBeTrue)
				So(s.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the store is closed", func() {
			s.Close()
			err := s.SetHistory(ctx, weeklySync("e1"), item("w1"))

			Convey("Then writes surface a storage failure", func() {
				So(errors.Is(err, history.ErrStorage), ShouldBeTrue)
				So(errors.Is(err, history.ErrClosed), ShouldBeTrue)
				So(errors.Is(s.Dump(ctx), history.ErrStorage), ShouldBeTrue)
			})
		})
	})
}

func TestStoreDumpFailure(t *testing.T) {
	Convey("Given a store whose backend already holds one entry", t, func() {
		ctx := context.Background()
		backend := &fakeBackend{}
		s := history.NewStore(backend)
		So(s.SetHistory(ctx, weeklySync("e1"), item("w1")), ShouldBeNil)
		So(s.Dump(ctx), ShouldBeNil)

		Convey("When a later dump fails", func() {
			So(s.SetHistory(ctx, model.Event{UUID: "e2", Name: "Standup"}, item("w2")), ShouldBeNil)
			backend.fail = errors.New("disk full")
			err := s.Dump(ctx)

			Convey("Then the error wraps ErrStorage and the old snapshot survives", func() {
				So(errors.Is(err, history.ErrStorage), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "disk full")
				So(backend.saved, ShouldHaveLength, 1)
				So(backend.saves, ShouldEqual, 1)
			})

			Convey("Then in-memory state still has the new entry", func() {
				_, ok := s.Lookup(ctx, "standup")
				So(ok, ShouldBeTrue)
			})
		})
	})
}

func TestStoreConcurrentWritesAndDump(t *testing.T) {
	Convey("Given concurrent writers", t, func() {
		ctx := context.Background()
		backend := &fakeBackend{}
		s := history.NewStore(backend, history.WithMaxSize(0))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ev := model.Event{UUID: "e", Name: "meeting " + string(rune('a'+i%26)) + string(rune('a'+i/26))}
				_ = s.SetHistory(ctx, ev, item("w"))
			}(i)
		}
		wg.Wait()

		Convey("Then a dump issued afterwards contains every write", func() {
			So(s.Dump(ctx), ShouldBeNil)
			So(backend.saved, ShouldHaveLength, 50)
		})
	})
}

func TestStoreCapacityAndRetention(t *testing.T) {
	Convey("Given a bounded store with retention", t, func() {
		ctx := context.Background()
		clk := newClock()
		backend := &fakeBackend{}
		s := history.NewStore(backend,
			history.WithMaxSize(2),
			history.WithRetention(48*time.Hour),
			history.WithClock(clk.now))

		So(s.SetHistory(ctx, model.Event{Name: "A"}, item("w1")), ShouldBeNil)
		clk.advance(time.Hour)
		So(s.SetHistory(ctx, model.Event{Name: "B"}, item("w2")), ShouldBeNil)
		clk.advance(time.Hour)

		Convey("When a third signature is written", func() {
			So(s.SetHistory(ctx, model.Event{Name: "C"}, item("w3")), ShouldBeNil)

			Convey("Then the least recently used entry is evicted", func() {
				So(s.Size(), ShouldEqual, 2)
				_, ok := s.Lookup(ctx, "a")
				So(ok, ShouldBeFalse)
				_, ok = s.Lookup(ctx, "c")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When entries outlive the retention", func() {
			clk.advance(47 * time.Hour)

			Convey("Then lookups miss without mutating the store", func() {
				_, ok := s.Lookup(ctx, "a")
				So(ok, ShouldBeFalse)
				_, ok = s.Lookup(ctx, "b")
				So(ok, ShouldBeTrue)
				So(s.Size(), ShouldEqual, 2)
				So(s.Entries(), ShouldHaveLength, 1)
			})

			Convey("Then a dump prunes them before saving", func() {
				So(s.Dump(ctx), ShouldBeNil)
				So(s.Size(), ShouldEqual, 1)
				So(backend.saved, ShouldHaveLength, 1)
				So(backend.saved[0].Signature, ShouldEqual, "b")
			})
		})
	})
}

func TestStoreEntriesAndDelete(t *testing.T) {
	Convey("Given entries with different use counts", t, func() {
		ctx := context.Background()
		clk := newClock()
		s := history.NewStore(&fakeBackend{}, history.WithClock(clk.now))

		So(s.SetHistory(ctx, model.Event{Name: "once"}, item("w1")), ShouldBeNil)
		clk.advance(time.Minute)
		So(s.SetHistory(ctx, model.Event{Name: "twice"}, item("w2")), ShouldBeNil)
		So(s.SetHistory(ctx, model.Event{Name: "twice"}, item("w2")), ShouldBeNil)
		clk.advance(time.Minute)
		So(s.SetHistory(ctx, model.Event{Name: "recent"}, item("w3")), ShouldBeNil)

		Convey("Then entries are ordered by use count then recency", func() {
			entries := s.Entries()
			So(entries, ShouldHaveLength, 3)
			So(entries[0].Signature, ShouldEqual, "twice")
			So(entries[1].Signature, ShouldEqual, "recent")
			So(entries[2].Signature, ShouldEqual, "once")
		})

		Convey("Then delete removes exactly one signature", func() {
			ok, err := s.Delete(ctx, "once")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			ok, err = s.Delete(ctx, "once")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(s.Size(), ShouldEqual, 2)
		})
	})
}

func TestStoreExportImport(t *testing.T) {
	Convey("Given a store with history", t, func() {
		ctx := context.Background()
		clk := newClock()
		src := history.NewStore(&fakeBackend{}, history.WithClock(clk.now))
		So(src.SetHistory(ctx, weeklySync("e1"), item("w1")), ShouldBeNil)
		So(src.SetHistory(ctx, model.Event{Name: "Standup"}, item("w2")), ShouldBeNil)

		var buf bytes.Buffer
		So(src.Export(&buf), ShouldBeNil)

		Convey("When importing into an empty store", func() {
			dst := history.NewStore(&fakeBackend{})
			n, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()), false)

			Convey("Then every entry is restored", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				id, ok := dst.Lookup(ctx, "weekly sync")
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "w1")
			})
		})

		Convey("When merging into a store with a newer entry", func() {
			dstClock := newClock()
			dstClock.advance(time.Hour)
			dst := history.NewStore(&fakeBackend{}, history.WithClock(dstClock.now))
			So(dst.SetHistory(ctx, weeklySync("e9"), item("w9")), ShouldBeNil)

			n, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()), true)

			Convey("Then the newer local entry is kept", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				id, _ := dst.Lookup(ctx, "weekly sync")
				So(id, ShouldEqual, "w9")
				So(dst.Size(), ShouldEqual, 2)
			})
		})

		Convey("When the input is not YAML", func() {
			dst := history.NewStore(&fakeBackend{})
			_, err := dst.Import(ctx, bytes.NewBufferString("entries: [oops"), false)

			Convey("Then a decode error is returned", func() {
				So(errors.Is(err, history.ErrDecode), ShouldBeTrue)
			})
		})
	})
}
