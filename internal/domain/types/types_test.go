package types_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ttlink/internal/domain/model"
	types "github.com/okian/ttlink/internal/domain/types"
)

func TestEvent(t *testing.T) {
	Convey("Given a calendar event", t, func() {
		start := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
		ev := model.Event{UUID: "e1", Name: "Weekly Sync", Start: start, End: start.Add(time.Hour), WorkingEventType: "start"}

		Convey("When it is sent over the wire", func() {
			raw, err := json.Marshal(types.FromEvent(ev))
			So(err, ShouldBeNil)

			Convey("Then the subject key is used and empty flags are omitted", func() {
				So(string(raw), ShouldContainSubstring, `"subject":"Weekly Sync"`)
				So(string(raw), ShouldNotContainSubstring, "isPrivate")
				So(string(raw), ShouldContainSubstring, `"workingEventType":"start"`)
			})
		})
	})
}

func TestWorkItem(t *testing.T) {
	Convey("Given a nested work item payload", t, func() {
		payload := `[{"id":"p","name":"Project","subItems":[{"id":"w1","name":"Dev","folderPath":"Project"}]}]`
		var items []types.WorkItem
		So(json.Unmarshal([]byte(payload), &items), ShouldBeNil)

		Convey("When converted to the model", func() {
			tree := types.WorkItems(items)

			Convey("Then only the leaf is registrable", func() {
				leaves := model.Leaves(tree)
				So(leaves, ShouldHaveLength, 1)
				So(leaves[0].Label(), ShouldEqual, "Project/Dev")
			})
		})
	})
}

func TestDecision(t *testing.T) {
	Convey("Given decisions of each kind", t, func() {
		ev := model.Event{UUID: "e1"}
		wi := model.WorkItem{ID: "w1"}

		Convey("Then linked decisions carry the work item and source", func() {
			d := types.FromDecision(model.Linked(ev, wi, model.SourceHistory))
			So(d, ShouldResemble, types.Decision{Kind: "linked", EventUUID: "e1", WorkItemID: "w1", Source: "history"})
		})

		Convey("Then unlinked decisions carry only the reason", func() {
			d := types.FromDecision(model.Unlinked(ev, model.ReasonNoMatch))
			So(d, ShouldResemble, types.Decision{Kind: "unlinked", EventUUID: "e1", Reason: "no-match"})
		})

		Convey("Then pairs survive a round trip through the wire form", func() {
			p := model.Pair{Event: ev, WorkItem: wi, Source: model.SourceManual}
			So(types.FromPair(p).Model().Key(), ShouldEqual, p.Key())
		})
	})
}
