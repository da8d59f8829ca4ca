// Package ignore removes events whose subject matches a configured ignore
// pattern before any linking is attempted.
package ignore

import (
	"strings"

	"github.com/okian/ttlink/internal/domain/model"
)

// MatchMode selects how a pattern is compared with an event name.
type MatchMode string

const (
	MatchExact   MatchMode = "exact"
	MatchPartial MatchMode = "partial"
	MatchPrefix  MatchMode = "prefix"
	MatchSuffix  MatchMode = "suffix"
)

// Pattern is one user defined ignore rule. An empty MatchMode means partial.
type Pattern struct {
	Pattern   string
	MatchMode MatchMode
}

// Match is an ignored event and the first pattern that matched it.
type Match struct {
	Event   model.Event
	Pattern Pattern
}

// Result splits the input into kept and ignored events, both in input order.
type Result struct {
	Kept    []model.Event
	Ignored []Match
}

// Matches reports whether name matches p. Empty patterns never match.
func (p Pattern) Matches(name string) bool {
	if p.Pattern == "" {
		return false
	}
	switch p.MatchMode {
	case MatchExact:
		return name == p.Pattern
	case MatchPrefix:
		return strings.HasPrefix(name, p.Pattern)
	case MatchSuffix:
		return strings.HasSuffix(name, p.Pattern)
	default:
		return strings.Contains(name, p.Pattern)
	}
}

// Filter applies patterns to events. With no patterns every event is kept.
func Filter(events []model.Event, patterns []Pattern) Result {
	res := Result{Kept: make([]model.Event, 0, len(events))}
	for _, ev := range events {
		if p, ok := First(patterns, ev.Name); ok {
			res.Ignored = append(res.Ignored, Match{Event: ev, Pattern: p})
			continue
		}
		res.Kept = append(res.Kept, ev)
	}
	return res
}

// First returns the first pattern in configured order that matches name.
func First(patterns []Pattern, name string) (Pattern, bool) {
	for _, p := range patterns {
		if p.Matches(name) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Enabled drops private and cancelled events.
func Enabled(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.IsPrivate || ev.IsCancelled {
			continue
		}
		out = append(out, ev)
	}
	return out
}
