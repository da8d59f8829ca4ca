package dedupe

import (
	"sort"
	"time"

	"github.com/okian/ttlink/internal/domain/model"
)

// Policy configures Check.
type Policy struct {
	Enabled bool
	// Window is the largest gap between two events on the same work item
	// that still counts as a duplicate. Zero means only true overlaps.
	Window time.Duration
}

// Duplicate is a flagged pair and the earlier pair it collides with.
type Duplicate struct {
	Pair model.Pair
	Of   model.Pair
}

// Result of Check. Kept preserves input order; Duplicates are ordered by
// event start, then uuid.
type Result struct {
	Kept       []model.Pair
	Duplicates []Duplicate
}

// Check flags pairs that would register the same work item twice within
// the policy window. Of two colliding pairs the later one (by start time,
// then event uuid) is flagged. A disabled policy passes everything through.
func Check(pairs []model.Pair, p Policy) Result {
	if !p.Enabled {
		return Result{Kept: append([]model.Pair(nil), pairs...)}
	}

	idx := make([]int, len(pairs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := pairs[idx[a]].Event, pairs[idx[b]].Event
		if !ea.Start.Equal(eb.Start) {
			return ea.Start.Before(eb.Start)
		}
		return ea.UUID < eb.UUID
	})

	accepted := make(map[string][]int) // work item id -> accepted pair indexes
	flagged := make(map[int]Duplicate)
	var dupOrder []int
	for _, i := range idx {
		cur := pairs[i]
		wid := cur.WorkItem.ID
		if j, ok := collides(pairs, accepted[wid], cur.Event, p.Window); ok {
			flagged[i] = Duplicate{Pair: cur, Of: pairs[j]}
			dupOrder = append(dupOrder, i)
			continue
		}
		accepted[wid] = append(accepted[wid], i)
	}

	res := Result{Kept: make([]model.Pair, 0, len(pairs)-len(flagged))}
	for i, pr := range pairs {
		if _, ok := flagged[i]; !ok {
			res.Kept = append(res.Kept, pr)
		}
	}
	for _, i := range dupOrder {
		res.Duplicates = append(res.Duplicates, flagged[i])
	}
	return res
}

func collides(pairs []model.Pair, accepted []int, ev model.Event, window time.Duration) (int, bool) {
	for _, j := range accepted {
		if pairs[j].Event.Overlaps(ev, window) {
			return j, true
		}
	}
	return 0, false
}
