package timetracker

import (
	"fmt"
	"time"
)

// SlotSize is the granularity the time tracker accepts for entry bounds.
const SlotSize = 30 * time.Minute

// RoundingMethod decides how event bounds off the half hour are moved onto
// slot boundaries. The names follow the tracker's own settings: "backward"
// moves a bound to the later slot, "forward" to the earlier one.
type RoundingMethod string

const (
	RoundBackward RoundingMethod = "backward"
	RoundForward  RoundingMethod = "forward"
	// RoundNearest goes to the later slot from 15 minutes past a boundary.
	RoundNearest RoundingMethod = "round"
	// RoundHalf is accepted as an alias of RoundNearest.
	RoundHalf RoundingMethod = "half"
	// RoundStretch widens the entry: start goes earlier, end goes later.
	RoundStretch RoundingMethod = "stretch"
)

// ParseRoundingMethod validates s. An empty string means RoundBackward.
func ParseRoundingMethod(s string) (RoundingMethod, error) {
	switch m := RoundingMethod(s); m {
	case "":
		return RoundBackward, nil
	case RoundBackward, RoundForward, RoundNearest, RoundHalf, RoundStretch:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown rounding method %q", ErrConfig, s)
	}
}

// Round moves start and end onto slot boundaries using m. It reports false
// when the rounded range is shorter than one slot; such an entry is dropped
// rather than registered.
func Round(start, end time.Time, m RoundingMethod) (time.Time, time.Time, bool) {
	switch m {
	case RoundForward:
		start, end = floorSlot(start), floorSlot(end)
	case RoundNearest, RoundHalf:
		start, end = nearestSlot(start), nearestSlot(end)
	case RoundStretch:
		start, end = floorSlot(start), ceilSlot(end)
	default:
		start, end = ceilSlot(start), ceilSlot(end)
	}
	if end.Sub(start) < SlotSize {
		return start, end, false
	}
	return start, end, true
}

// offSlot is how far t lies past the previous boundary, measured in t's
// own location.
func offSlot(t time.Time) time.Duration {
	return time.Duration(t.Minute()%30)*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

func floorSlot(t time.Time) time.Time {
	return t.Add(-offSlot(t))
}

func ceilSlot(t time.Time) time.Time {
	off := offSlot(t)
	if off == 0 {
		return t
	}
	return t.Add(SlotSize - off)
}

func nearestSlot(t time.Time) time.Time {
	if offSlot(t) >= SlotSize/2 {
		return ceilSlot(t)
	}
	return floorSlot(t)
}
