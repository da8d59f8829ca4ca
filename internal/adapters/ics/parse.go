// Package ics reads calendar events from iCalendar payloads and expands
// recurring ones into the occurrences of a time window.
package ics

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
)

// WorkingEventTypeProperty marks working time boundaries ("start", "middle",
// "end") on an event.
const WorkingEventTypeProperty = "X-TTLINK-WORKING-EVENT-TYPE"

// component is one VEVENT before recurrence expansion.
type component struct {
	UID       string
	Summary   string
	Organizer string
	Location  string

	Start  time.Time
	End    time.Time
	AllDay bool

	Private     bool
	Cancelled   bool
	WorkingType string

	RRule      string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overriding instance
}

func parse(r io.Reader, loc *time.Location) ([]component, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmpty
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	out := make([]component, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		c, ok := parseVEvent(ve, loc)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (component, bool) {
	var c component

	c.UID = value(ve, ical.ComponentPropertyUniqueId)
	if c.UID == "" {
		c.UID = uuid.NewString()
	}
	c.Summary = value(ve, ical.ComponentPropertySummary)
	c.Location = value(ve, ical.ComponentPropertyLocation)
	c.Organizer = organizer(ve)
	c.WorkingType = strings.ToLower(value(ve, WorkingEventTypeProperty))

	switch strings.ToUpper(value(ve, ical.ComponentPropertyClass)) {
	case "PRIVATE", "CONFIDENTIAL":
		c.Private = true
	}
	c.Cancelled = strings.EqualFold(value(ve, ical.ComponentPropertyStatus), "CANCELLED")

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return c, false
	}
	c.AllDay = isDate(dtStart)

	var err error
	if c.AllDay {
		c.Start, err = ve.GetAllDayStartAt()
	} else {
		c.Start, err = ve.GetStartAt()
	}
	if err != nil {
		return c, false
	}

	var end time.Time
	if c.AllDay {
		end, err = ve.GetAllDayEndAt()
	} else {
		end, err = ve.GetEndAt()
	}
	switch {
	case err == nil && end.After(c.Start):
		c.End = end
	case c.AllDay:
		c.End = c.Start.AddDate(0, 0, 1)
	default:
		c.End = c.Start
	}

	switch {
	case c.AllDay:
		c.Start = midnight(c.Start, loc)
		c.End = midnight(c.End, loc)
	case floating(dtStart):
		c.Start = inLocation(c.Start, loc)
		c.End = inLocation(c.End, loc)
	}

	c.RRule = value(ve, ical.ComponentPropertyRrule)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, tzid(p, loc)); err == nil {
				c.ExDates = append(c.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseTime(p.Value, tzid(p, loc)); err == nil {
			c.Recurrence = &t
		}
	}
	return c, true
}

func value(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// organizer prefers the common name and falls back to the address.
func organizer(ve *ical.VEvent) string {
	p := ve.GetProperty(ical.ComponentPropertyOrganizer)
	if p == nil {
		return ""
	}
	if cn := p.ICalParameters["CN"]; len(cn) > 0 && cn[0] != "" {
		return cn[0]
	}
	v := strings.TrimSpace(p.Value)
	if len(v) > 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

func isDate(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// floating reports a local time without zone, which is read in the
// configured location.
func floating(p *ical.IANAProperty) bool {
	if _, ok := p.ICalParameters["TZID"]; ok {
		return false
	}
	return !strings.HasSuffix(p.Value, "Z")
}

func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func tzid(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if ids := p.ICalParameters["TZID"]; len(ids) > 0 {
		if loc, err := time.LoadLocation(ids[0]); err == nil {
			return loc
		}
	}
	return fallback
}

func midnight(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// parseTime handles the UTC, floating and date-only forms.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, fmt.Errorf("%w: empty time value", ErrParse)
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
