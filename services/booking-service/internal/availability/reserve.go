package availability

import "time"

// RejectReason explains why a reservation was not confirmed.
type RejectReason string

const (
	ReasonAlreadyBooked    RejectReason = "ALREADY_BOOKED"
	ReasonInvalidAlignment RejectReason = "INVALID_SLOT_ALIGNMENT"
	ReasonOutOfWindow      RejectReason = "OUT_OF_WINDOW"
)

// Reservation is the outcome of ReserveSlot. When Confirmed is false only Reason is set.
type Reservation struct {
	Confirmed bool
	Start     time.Time
	End       time.Time
	Label     string
	Reason    RejectReason
}

func rejected(reason RejectReason) Reservation {
	return Reservation{Reason: reason}
}

// ReserveSlot validates chosen against a grid recomputed from snapshot. The meeting runs for the
// policy's meeting duration from the slot start and must end inside the working window without
// touching busy time. Conflicts are reported in the result, not as errors.
func (e *Engine) ReserveSlot(date Date, loc *time.Location, chosen time.Time, snapshot []Interval) Reservation {
	if loc == nil {
		loc = time.UTC
	}
	grid := e.ComputeDaySlots(date, loc, snapshot)
	if slot, ok := grid.Find(chosen); ok {
		end := slot.Start.Add(e.policy.MeetingDuration)
		switch {
		case slot.Busy:
			return rejected(ReasonAlreadyBooked)
		case end.After(slot.windowEnd):
			return rejected(ReasonOutOfWindow)
		case !slot.Bookable:
			return rejected(ReasonAlreadyBooked)
		}
		return Reservation{
			Confirmed: true,
			Start:     slot.Start,
			End:       end,
			Label:     slot.Label,
		}
	}

	dayStart := date.StartIn(loc)
	dayEnd := date.AddDays(1).StartIn(loc)
	if chosen.Before(dayStart) || !chosen.Before(dayEnd) {
		return rejected(ReasonOutOfWindow)
	}
	step := e.policy.SlotDuration
	for _, w := range e.windowsFor(date, loc) {
		if chosen.Before(w.Start) || chosen.Add(step).After(w.End) {
			continue
		}
		// An aligned start missing from the grid repeats a wall-clock label already taken by
		// an earlier instant.
		if chosen.Sub(w.Start)%step == 0 {
			return rejected(ReasonOutOfWindow)
		}
		return rejected(ReasonInvalidAlignment)
	}
	return rejected(ReasonOutOfWindow)
}
