// Package model contains domain models passed between layers.
package model

import "time"

// Event is one calendar occurrence. Events are values; nothing in the
// linking engine mutates them after ingestion.
type Event struct {
	UUID      string
	Name      string // subject
	Organizer string
	Location  string
	Start     time.Time
	End       time.Time

	IsPrivate   bool
	IsCancelled bool

	// WorkingEventType marks working time boundaries: "start", "middle" or "end".
	WorkingEventType string
}

// Duration returns End-Start, or zero for inverted ranges.
func (e Event) Duration() time.Duration {
	if e.End.Before(e.Start) {
		return 0
	}
	return e.End.Sub(e.Start)
}

// Overlaps reports whether the two ranges intersect or are separated by at
// most gap. Identical ranges always overlap. Touching ranges (a.End ==
// b.Start) count as overlapping only when gap > 0.
func (e Event) Overlaps(o Event, gap time.Duration) bool {
	if e.Start.Equal(o.Start) && e.End.Equal(o.End) {
		return true
	}
	if gap == 0 {
		return e.Start.Before(o.End) && o.Start.Before(e.End)
	}
	return !e.Start.After(o.End.Add(gap)) && !o.Start.After(e.End.Add(gap))
}

// FindEvent returns the event with the given uuid.
func FindEvent(events []Event, uuid string) (Event, bool) {
	for _, e := range events {
		if e.UUID == uuid {
			return e, true
		}
	}
	return Event{}, false
}
