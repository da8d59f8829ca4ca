package ics

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/logger"
)

// occurrenceSpace namespaces the stable per-occurrence event ids.
var occurrenceSpace = uuid.MustParse("5b0f3c8e-6f0e-4c55-9a7e-2f1b8f7f6d10")

// Read parses an iCalendar payload and returns the events overlapping
// [from, to), recurring events expanded into occurrences. Events are ordered
// by start time, then UUID. An occurrence's UUID is derived from its UID and
// start so repeated reads agree.
func Read(ctx context.Context, r io.Reader, from, to time.Time, opts ...Option) ([]model.Event, error) {
	if to.Before(from) {
		return nil, ErrRange
	}
	rd := &reader{loc: time.Local, maxOccurrences: defaultMaxOccurrences}
	for _, opt := range opts {
		opt(rd)
	}
	if rd.log == nil {
		rd.log = logger.Get().Named("ics")
	}

	comps, err := parse(r, rd.loc)
	if err != nil {
		return nil, err
	}

	bases := make(map[string][]component)
	overrides := make(map[string][]component)
	var uids []string
	for _, c := range comps {
		if c.Recurrence != nil {
			overrides[c.UID] = append(overrides[c.UID], c)
			continue
		}
		if _, seen := bases[c.UID]; !seen {
			uids = append(uids, c.UID)
		}
		bases[c.UID] = append(bases[c.UID], c)
	}

	var out []model.Event
	for _, uid := range uids {
		for _, c := range bases[uid] {
			occ, truncated := rd.expand(ctx, c, overrides[uid], from, to)
			if truncated {
				rd.log.Warn(ctx, "recurrence truncated",
					logger.String("uid", uid),
					logger.Int("cap", rd.maxOccurrences))
			}
			out = append(out, occ...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UUID < out[j].UUID
	})
	rd.log.Debug(ctx, "calendar read",
		logger.Int("components", len(comps)),
		logger.Int("events", len(out)))
	return out, nil
}

func (rd *reader) expand(ctx context.Context, c component, overrides []component, from, to time.Time) ([]model.Event, bool) {
	if c.RRule == "" {
		if !overlaps(c.Start, c.End, from, to) {
			return nil, false
		}
		return []model.Event{toEvent(c, c.Start, c.End, time.Time{})}, false
	}

	rule, err := rrule.StrToRRule(c.RRule)
	if err != nil {
		rd.log.Warn(ctx, "invalid recurrence rule",
			logger.String("uid", c.UID),
			logger.String("rrule", c.RRule),
			logger.Error(err))
		return nil, false
	}
	rule.DTStart(c.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range c.ExDates {
		set.ExDate(ex.In(c.Start.Location()))
	}

	// occurrences that started before the window may still run into it
	span := c.End.Sub(c.Start)
	starts := set.Between(from.Add(-span).In(c.Start.Location()), to.In(c.Start.Location()), true)
	truncated := false
	if len(starts) > rd.maxOccurrences {
		starts = starts[:rd.maxOccurrences]
		truncated = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, st := range starts {
		occ, start, end := c, st, st.Add(span)
		if o, ok := findOverride(overrides, st); ok {
			occ, start, end = o, o.Start, o.End
		}
		if !overlaps(start, end, from, to) {
			continue
		}
		out = append(out, toEvent(occ, start, end, st))
	}
	return out, truncated
}

func findOverride(overrides []component, start time.Time) (component, bool) {
	for _, o := range overrides {
		if o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return component{}, false
}

// overlaps treats zero-length events as points inside the window.
func overlaps(start, end, from, to time.Time) bool {
	if end.Equal(start) {
		return !start.Before(from) && start.Before(to)
	}
	return start.Before(to) && end.After(from)
}

// toEvent builds the event for one occurrence. instance is the scheduled
// start of a recurring occurrence and zero for single events.
func toEvent(c component, start, end, instance time.Time) model.Event {
	id := c.UID
	if !instance.IsZero() {
		id = uuid.NewSHA1(occurrenceSpace, []byte(fmt.Sprintf("%s|%d", c.UID, instance.Unix()))).String()
	}
	return model.Event{
		UUID:             id,
		Name:             c.Summary,
		Organizer:        c.Organizer,
		Location:         c.Location,
		Start:            start,
		End:              end,
		IsPrivate:        c.Private,
		IsCancelled:      c.Cancelled,
		WorkingEventType: c.WorkingType,
	}
}
