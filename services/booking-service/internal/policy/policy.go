package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tonyphoesis/phoesis-website/services/booking-service/internal/availability"
)

// File is the YAML form of the working-hours policy.
//
//	home_zone: America/Phoenix
//	daily_start: "07:00"
//	daily_end: "20:00"
//	slot_minutes: 30
//	meeting_minutes: 60
//	weekdays: [monday, tuesday, wednesday, thursday, friday]
type File struct {
	HomeZone       string   `yaml:"home_zone"`
	DailyStart     string   `yaml:"daily_start"`
	DailyEnd       string   `yaml:"daily_end"`
	SlotMinutes    int      `yaml:"slot_minutes"`
	MeetingMinutes int      `yaml:"meeting_minutes"`
	Weekdays       []string `yaml:"weekdays"`
}

// Normalize fills unset fields from the default policy.
func (f *File) Normalize() {
	def := availability.DefaultPolicy()
	if f.HomeZone == "" {
		f.HomeZone = availability.HomeZoneName
	}
	if f.DailyStart == "" {
		f.DailyStart = def.DailyStart.String()
	}
	if f.DailyEnd == "" {
		f.DailyEnd = def.DailyEnd.String()
	}
	if f.SlotMinutes <= 0 {
		f.SlotMinutes = int(def.SlotDuration / time.Minute)
	}
	if f.MeetingMinutes <= 0 {
		f.MeetingMinutes = int(def.MeetingDuration / time.Minute)
	}
}

// Policy converts the file into a validated availability.Policy.
func (f File) Policy() (availability.Policy, error) {
	f.Normalize()
	loc, err := time.LoadLocation(f.HomeZone)
	if err != nil {
		return availability.Policy{}, fmt.Errorf("home_zone: %w", err)
	}
	start, err := availability.ParseClock(f.DailyStart)
	if err != nil {
		return availability.Policy{}, fmt.Errorf("daily_start: %w", err)
	}
	end, err := parseEnd(f.DailyEnd)
	if err != nil {
		return availability.Policy{}, fmt.Errorf("daily_end: %w", err)
	}
	var days []time.Weekday
	for _, name := range f.Weekdays {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return availability.Policy{}, fmt.Errorf("weekdays: unknown day %q", name)
		}
		days = append(days, wd)
	}

	p := availability.Policy{
		HomeZone:        loc,
		DailyStart:      start,
		DailyEnd:        end,
		SlotDuration:    time.Duration(f.SlotMinutes) * time.Minute,
		MeetingDuration: time.Duration(f.MeetingMinutes) * time.Minute,
		Weekdays:        days,
	}
	if err := p.Validate(); err != nil {
		return availability.Policy{}, err
	}
	return p, nil
}

// parseEnd also accepts "24:00" for a window running to midnight.
func parseEnd(s string) (availability.Clock, error) {
	if s == "24:00" {
		return availability.Clock{Hour: 24}, nil
	}
	return availability.ParseClock(s)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func Parse(data []byte) (availability.Policy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return availability.Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	return f.Policy()
}

// Load reads a policy file. An empty path yields the default policy.
func Load(path string) (availability.Policy, error) {
	if path == "" {
		return availability.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return availability.Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	if len(data) == 0 {
		return availability.Policy{}, errors.New("policy file is empty")
	}
	return Parse(data)
}
