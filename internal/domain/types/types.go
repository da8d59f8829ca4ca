// Package types contains the JSON shapes shared by the HTTP API and the CLI.
package types

import (
	"time"

	"github.com/okian/ttlink/internal/domain/dedupe"
	"github.com/okian/ttlink/internal/domain/ignore"
	"github.com/okian/ttlink/internal/domain/model"
)

// Event is the wire form of model.Event.
type Event struct {
	UUID             string    `json:"uuid"`
	Subject          string    `json:"subject"`
	Organizer        string    `json:"organizer,omitempty"`
	Location         string    `json:"location,omitempty"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	IsPrivate        bool      `json:"isPrivate,omitempty"`
	IsCancelled      bool      `json:"isCancelled,omitempty"`
	WorkingEventType string    `json:"workingEventType,omitempty"`
}

// WorkItem is the wire form of model.WorkItem.
type WorkItem struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	FolderName string     `json:"folderName,omitempty"`
	FolderPath string     `json:"folderPath,omitempty"`
	SubItems   []WorkItem `json:"subItems,omitempty"`
}

// Pair is an event bound to a work item.
type Pair struct {
	Event    Event    `json:"event"`
	WorkItem WorkItem `json:"workItem"`
	Source   string   `json:"source"`
}

// Decision is one per-event outcome of a linking pass.
type Decision struct {
	Kind       string `json:"kind"`
	EventUUID  string `json:"eventUuid"`
	WorkItemID string `json:"workItemId,omitempty"`
	Source     string `json:"source,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Pattern    string `json:"pattern,omitempty"`
}

// Duplicate is a pair held back by the duplicate guard.
type Duplicate struct {
	Pair Pair `json:"pair"`
	Of   Pair `json:"of"`
}

// IgnoredEvent is an event dropped by an ignore pattern.
type IgnoredEvent struct {
	Event     Event  `json:"event"`
	Pattern   string `json:"pattern"`
	MatchMode string `json:"matchMode"`
}

// FromEvent converts a model event.
func FromEvent(e model.Event) Event {
	return Event{
		UUID:             e.UUID,
		Subject:          e.Name,
		Organizer:        e.Organizer,
		Location:         e.Location,
		Start:            e.Start,
		End:              e.End,
		IsPrivate:        e.IsPrivate,
		IsCancelled:      e.IsCancelled,
		WorkingEventType: e.WorkingEventType,
	}
}

// Model converts e back to a model event.
func (e Event) Model() model.Event {
	return model.Event{
		UUID:             e.UUID,
		Name:             e.Subject,
		Organizer:        e.Organizer,
		Location:         e.Location,
		Start:            e.Start,
		End:              e.End,
		IsPrivate:        e.IsPrivate,
		IsCancelled:      e.IsCancelled,
		WorkingEventType: e.WorkingEventType,
	}
}

// FromWorkItem converts a model work item tree.
func FromWorkItem(w model.WorkItem) WorkItem {
	out := WorkItem{ID: w.ID, Name: w.Name, FolderName: w.FolderName, FolderPath: w.FolderPath}
	for _, sub := range w.SubItems {
		out.SubItems = append(out.SubItems, FromWorkItem(sub))
	}
	return out
}

// Model converts w back to a model work item tree.
func (w WorkItem) Model() model.WorkItem {
	out := model.WorkItem{ID: w.ID, Name: w.Name, FolderName: w.FolderName, FolderPath: w.FolderPath}
	for _, sub := range w.SubItems {
		out.SubItems = append(out.SubItems, sub.Model())
	}
	return out
}

// FromPair converts a model pair.
func FromPair(p model.Pair) Pair {
	return Pair{Event: FromEvent(p.Event), WorkItem: FromWorkItem(p.WorkItem), Source: string(p.Source)}
}

// Model converts p back to a model pair.
func (p Pair) Model() model.Pair {
	return model.Pair{Event: p.Event.Model(), WorkItem: p.WorkItem.Model(), Source: model.Source(p.Source)}
}

// FromDecision converts a model decision.
func FromDecision(d model.Decision) Decision {
	out := Decision{Kind: d.Kind.String(), EventUUID: d.Event.UUID, Reason: d.Reason, Pattern: d.Pattern}
	if d.Kind == model.DecisionLinked {
		out.WorkItemID = d.WorkItem.ID
		out.Source = string(d.Source)
	}
	return out
}

// FromDuplicate converts a guard finding.
func FromDuplicate(d dedupe.Duplicate) Duplicate {
	return Duplicate{Pair: FromPair(d.Pair), Of: FromPair(d.Of)}
}

// FromMatch converts an ignore match.
func FromMatch(m ignore.Match) IgnoredEvent {
	return IgnoredEvent{Event: FromEvent(m.Event), Pattern: m.Pattern.Pattern, MatchMode: string(m.Pattern.MatchMode)}
}

// Events converts a slice of wire events.
func Events(in []Event) []model.Event {
	out := make([]model.Event, 0, len(in))
	for _, e := range in {
		out = append(out, e.Model())
	}
	return out
}

// WorkItems converts a slice of wire work items.
func WorkItems(in []WorkItem) []model.WorkItem {
	out := make([]model.WorkItem, 0, len(in))
	for _, w := range in {
		out = append(out, w.Model())
	}
	return out
}

// Pairs converts a slice of wire pairs.
func Pairs(in []Pair) []model.Pair {
	out := make([]model.Pair, 0, len(in))
	for _, p := range in {
		out = append(out, p.Model())
	}
	return out
}
