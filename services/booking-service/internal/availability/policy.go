package availability

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// HomeZoneName is the zone the consultancy's working hours are anchored to.
const HomeZoneName = "America/Phoenix"

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24-hour).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// on returns the instant c occurs on date d in loc.
func (c Clock) on(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// Policy is the working-hours policy: a daily window in HomeZone split into fixed slots.
// A slot exists only when a full SlotDuration fits before DailyEnd.
type Policy struct {
	HomeZone        *time.Location
	DailyStart      Clock
	DailyEnd        Clock
	SlotDuration    time.Duration
	MeetingDuration time.Duration
	// Weekdays lists the working days; empty means every day.
	Weekdays []time.Weekday
}

// DefaultPolicy is 07:00-20:00 in Phoenix time with 30 minute slots (07:00 through 19:30)
// and one hour meetings.
func DefaultPolicy() Policy {
	return Policy{
		HomeZone:        LoadHomeZone(HomeZoneName),
		DailyStart:      Clock{Hour: 7},
		DailyEnd:        Clock{Hour: 20},
		SlotDuration:    30 * time.Minute,
		MeetingDuration: 60 * time.Minute,
	}
}

// LoadHomeZone resolves name from the zone database. Phoenix falls back to a fixed UTC-7
// zone when no tzdata is available, since Arizona does not observe daylight saving.
func LoadHomeZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	if name == HomeZoneName {
		return time.FixedZone("MST", -7*60*60)
	}
	return time.UTC
}

func (p Policy) Validate() error {
	var errs []error
	if p.HomeZone == nil {
		errs = append(errs, errors.New("home zone is required"))
	}
	if p.DailyStart.Hour < 0 || p.DailyStart.Hour > 23 || p.DailyStart.Minute < 0 || p.DailyStart.Minute > 59 {
		errs = append(errs, fmt.Errorf("daily start %s out of range", p.DailyStart))
	}
	if p.DailyEnd.minutes() > 24*60 || p.DailyEnd.Minute < 0 || p.DailyEnd.Minute > 59 {
		errs = append(errs, fmt.Errorf("daily end %s out of range", p.DailyEnd))
	}
	if p.DailyStart.minutes() >= p.DailyEnd.minutes() {
		errs = append(errs, fmt.Errorf("daily start %s must be before daily end %s", p.DailyStart, p.DailyEnd))
	}
	if p.SlotDuration <= 0 {
		errs = append(errs, errors.New("slot duration must be positive"))
	}
	if p.MeetingDuration <= 0 {
		errs = append(errs, errors.New("meeting duration must be positive"))
	}
	for _, wd := range p.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			errs = append(errs, fmt.Errorf("invalid weekday %d", wd))
		}
	}
	return errors.Join(errs...)
}

// MaxSlotsPerDay is the upper bound on candidates in one grid.
func (p Policy) MaxSlotsPerDay() int {
	span := time.Duration(p.DailyEnd.minutes()-p.DailyStart.minutes()) * time.Minute
	return int(span / p.SlotDuration)
}

func (p Policy) worksOn(wd time.Weekday) bool {
	return len(p.Weekdays) == 0 || slices.Contains(p.Weekdays, wd)
}

// Date is a calendar date without a time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf is the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// StartIn is local midnight of d in loc.
func (d Date) StartIn(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}
