package model

// Source records how a link was established.
type Source string

const (
	SourceHistory      Source = "history"
	SourceAI           Source = "ai"
	SourceManual       Source = "manual"
	SourceTimeOff      Source = "timeOff"
	SourceWorkSchedule Source = "workSchedule" // working-hours events
)

// Pair is an event bound to the work item it will be registered against.
type Pair struct {
	Event    Event
	WorkItem WorkItem
	Source   Source
}

// Key identifies the pair within a run.
func (p Pair) Key() string {
	return p.Event.UUID + "|" + p.WorkItem.ID
}

// DecisionKind tags a Decision.
type DecisionKind int

const (
	DecisionUnlinked DecisionKind = iota
	DecisionLinked
	DecisionIgnored
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionLinked:
		return "linked"
	case DecisionIgnored:
		return "ignored"
	default:
		return "unlinked"
	}
}

// Reasons carried by unlinked decisions.
const (
	ReasonNoMatch          = "no-match"
	ReasonAutoLinkDisabled = "auto-link-disabled"
	ReasonCancelled        = "cancelled"
)

// Decision is the per-event outcome of one resolution pass. Only the fields
// relevant to Kind are set.
type Decision struct {
	Kind     DecisionKind
	Event    Event
	WorkItem WorkItem // linked
	Source   Source   // linked
	Reason   string   // unlinked
	Pattern  string   // ignored
}

// Linked builds a linked decision.
func Linked(ev Event, wi WorkItem, src Source) Decision {
	return Decision{Kind: DecisionLinked, Event: ev, WorkItem: wi, Source: src}
}

// Unlinked builds an unlinked decision.
func Unlinked(ev Event, reason string) Decision {
	return Decision{Kind: DecisionUnlinked, Event: ev, Reason: reason}
}

// Ignored builds an ignored decision.
func Ignored(ev Event, pattern string) Decision {
	return Decision{Kind: DecisionIgnored, Event: ev, Pattern: pattern}
}

// Pair returns the linked pair; ok is false for other kinds.
func (d Decision) Pair() (Pair, bool) {
	if d.Kind != DecisionLinked {
		return Pair{}, false
	}
	return Pair{Event: d.Event, WorkItem: d.WorkItem, Source: d.Source}, true
}
