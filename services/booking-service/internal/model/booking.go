package model

import "time"

// Booking is the audit record of a confirmed meeting.
type Booking struct {
	ID              string
	Name            string
	Email           string
	Phone           string
	Message         string
	TimeZone        string
	StartTime       time.Time
	EndTime         time.Time
	CalendarEventID string
	MeetingLink     string
	CreatedAt       time.Time
}
