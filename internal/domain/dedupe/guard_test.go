package dedupe_test

import (
	"testing"
	"time"

	dedupe "github.com/okian/ttlink/internal/domain/dedupe"
	"github.com/okian/ttlink/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func pair(uuid, wid string, startH, startM, minutes int) model.Pair {
	start := monday.Add(time.Duration(startH)*time.Hour + time.Duration(startM)*time.Minute)
	return model.Pair{
		Event:    model.Event{UUID: uuid, Start: start, End: start.Add(time.Duration(minutes) * time.Minute)},
		WorkItem: model.WorkItem{ID: wid},
		Source:   model.SourceHistory,
	}
}

func uuids(pairs []model.Pair) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Event.UUID)
	}
	return out
}

func TestCheck(t *testing.T) {
	Convey("Given pairs on the same work item", t, func() {
		on := dedupe.Policy{Enabled: true}

		Convey("When their windows overlap", func() {
			late := pair("b", "w1", 9, 30, 60)
			early := pair("a", "w1", 9, 0, 60)
			res := dedupe.Check([]model.Pair{late, early}, on)

			Convey("Then exactly the later-starting one is flagged", func() {
				So(uuids(res.Kept), ShouldResemble, []string{"a"})
				So(res.Duplicates, ShouldHaveLength, 1)
				So(res.Duplicates[0].Pair.Event.UUID, ShouldEqual, "b")
				So(res.Duplicates[0].Of.Event.UUID, ShouldEqual, "a")
			})
		})

		Convey("When their windows do not overlap", func() {
			res := dedupe.Check([]model.Pair{pair("a", "w1", 9, 0, 60), pair("b", "w1", 10, 0, 60)}, on)

			Convey("Then neither is flagged", func() {
				So(res.Duplicates, ShouldBeEmpty)
				So(uuids(res.Kept), ShouldResemble, []string{"a", "b"})
			})
		})

		Convey("When they start together", func() {
			res := dedupe.Check([]model.Pair{pair("z", "w1", 9, 0, 30), pair("m", "w1", 9, 0, 30)}, on)

			Convey("Then the uuid breaks the tie", func() {
				So(uuids(res.Kept), ShouldResemble, []string{"m"})
				So(res.Duplicates[0].Pair.Event.UUID, ShouldEqual, "z")
			})
		})

		Convey("When a window tolerates the gap between them", func() {
			pairs := []model.Pair{pair("a", "w1", 9, 0, 60), pair("b", "w1", 10, 20, 30)}
			wide := dedupe.Check(pairs, dedupe.Policy{Enabled: true, Window: 30 * time.Minute})
			narrow := dedupe.Check(pairs, dedupe.Policy{Enabled: true, Window: 10 * time.Minute})

			Convey("Then only the wide window flags the later one", func() {
				So(uuids(wide.Kept), ShouldResemble, []string{"a"})
				So(narrow.Duplicates, ShouldBeEmpty)
			})
		})

		Convey("When the check is disabled", func() {
			pairs := []model.Pair{pair("a", "w1", 9, 0, 60), pair("b", "w1", 9, 0, 60)}
			res := dedupe.Check(pairs, dedupe.Policy{})

			Convey("Then everything passes through", func() {
				So(uuids(res.Kept), ShouldResemble, []string{"a", "b"})
				So(res.Duplicates, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a chain of overlapping pairs", t, func() {
		pairs := []model.Pair{
			pair("c", "w1", 10, 0, 60),
			pair("x", "w2", 9, 0, 60),
			pair("a", "w1", 9, 0, 60),
			pair("b", "w1", 9, 45, 30),
		}
		res := dedupe.Check(pairs, dedupe.Policy{Enabled: true})

		Convey("Then flags are relative to kept pairs and output order is stable", func() {
			So(uuids(res.Kept), ShouldResemble, []string{"c", "x", "a"})
			So(res.Duplicates, ShouldHaveLength, 1)
			So(res.Duplicates[0].Pair.Event.UUID, ShouldEqual, "b")
		})
	})
}
