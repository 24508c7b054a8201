package availability

import (
	"errors"
	"sort"
	"time"
)

// Interval is a half-open span [Start, End) of absolute time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NormalizeIntervals converts intervals to UTC and drops empty or inverted ones.
func NormalizeIntervals(in []Interval) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.End.After(iv.Start) {
			continue
		}
		out = append(out, Interval{Start: iv.Start.UTC(), End: iv.End.UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Slot is one candidate. Start and End are expressed in the requester's zone. Bookable
// reports whether a full meeting starting at Start fits the working window and is free.
type Slot struct {
	Start    time.Time
	End      time.Time
	Busy     bool
	Bookable bool
	Label    string

	windowEnd time.Time
}

// Grid is the ordered set of candidate slots for one requester-local date.
type Grid struct {
	Date     Date
	Location *time.Location
	Slots    []Slot
}

func (g Grid) Available() []Slot {
	var out []Slot
	for _, s := range g.Slots {
		if !s.Busy {
			out = append(out, s)
		}
	}
	return out
}

func (g Grid) BusyLabels() []string {
	out := []string{}
	for _, s := range g.Slots {
		if s.Busy {
			out = append(out, s.Label)
		}
	}
	return out
}

// UnavailableLabels is BusyLabels plus every slot that has already started at now.
func (g Grid) UnavailableLabels(now time.Time) []string {
	out := []string{}
	for _, s := range g.Slots {
		if s.Busy || s.Start.Before(now) {
			out = append(out, s.Label)
		}
	}
	return out
}

// Find returns the candidate starting exactly at start.
func (g Grid) Find(start time.Time) (Slot, bool) {
	for _, s := range g.Slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}

// Engine computes slot grids for a fixed policy. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	policy Policy
}

func New(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// windowsFor returns the working windows, as absolute intervals, of every home-zone date that
// can overlap the requester-local date. Zone offsets differ by at most 26h, so two days either
// side is enough.
func (e *Engine) windowsFor(date Date, loc *time.Location) []Interval {
	dayStart := date.StartIn(loc)
	dayEnd := date.AddDays(1).StartIn(loc)

	var windows []Interval
	for offset := -2; offset <= 2; offset++ {
		hd := date.AddDays(offset)
		if !e.policy.worksOn(hd.Weekday()) {
			continue
		}
		ws := e.policy.DailyStart.on(hd, e.policy.HomeZone)
		we := e.policy.DailyEnd.on(hd, e.policy.HomeZone)
		if !we.After(ws) {
			continue
		}
		if ws.Before(dayEnd) && we.After(dayStart) {
			windows = append(windows, Interval{Start: ws, End: we})
		}
	}
	return windows
}

// ComputeDaySlots builds the grid for date as seen in loc. Candidates come from the home-zone
// working windows, step by the slot duration, and never include a partial trailing slot. A
// candidate is part of the grid iff its start falls on date in loc. Busy marking uses the
// half-open overlap test.
//
// When loc repeats an hour (fall-back day) two instants can share a label. Only the earlier
// one is kept so every label names exactly one instant, and the grid never exceeds
// MaxSlotsPerDay.
func (e *Engine) ComputeDaySlots(date Date, loc *time.Location, busy []Interval) Grid {
	if loc == nil {
		loc = time.UTC
	}
	busy = NormalizeIntervals(busy)
	dayStart := date.StartIn(loc)
	dayEnd := date.AddDays(1).StartIn(loc)
	step := e.policy.SlotDuration
	meeting := e.policy.MeetingDuration

	var candidates []Slot
	for _, w := range e.windowsFor(date, loc) {
		for t := w.Start; !t.Add(step).After(w.End); t = t.Add(step) {
			if t.Before(dayStart) || !t.Before(dayEnd) {
				continue
			}
			local := t.In(loc)
			end := local.Add(step)
			slotBusy := overlapsAny(local, end, busy)
			candidates = append(candidates, Slot{
				Start:     local,
				End:       end,
				Busy:      slotBusy,
				Bookable:  !slotBusy && !local.Add(meeting).After(w.End) && !overlapsAny(local, local.Add(meeting), busy),
				Label:     local.Format("15:04"),
				windowEnd: w.End,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Start.Before(candidates[j].Start) })

	grid := Grid{Date: date, Location: loc}
	seen := make(map[string]bool, len(candidates))
	limit := e.policy.MaxSlotsPerDay()
	for _, c := range candidates {
		if seen[c.Label] {
			continue
		}
		if len(grid.Slots) == limit {
			break
		}
		seen[c.Label] = true
		grid.Slots = append(grid.Slots, c)
	}
	return grid
}

var ErrInvalidTime = errors.New("invalid slot time")

// ResolveSlot turns a requester-local date and "HH:MM" into an absolute instant. A label on the
// grid resolves to that slot's instant, so a repeated wall-clock hour always picks the grid's
// choice. Other labels go through the zone database; skipped wall-clock times normalize per
// time.Date and will then fail alignment in ReserveSlot.
func (e *Engine) ResolveSlot(date Date, loc *time.Location, hhmm string) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	c, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidTime, err)
	}
	label := c.String()
	for _, s := range e.ComputeDaySlots(date, loc, nil).Slots {
		if s.Label == label {
			return s.Start, nil
		}
	}
	return c.on(date, loc), nil
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
