package outbox

import "time"

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType, one topic per event.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventMeetingBooked   = "booking.meeting.booked.v1"
	EventContactReceived = "contact.message.received.v1"
)

// MeetingBooked is the payload of EventMeetingBooked.
type MeetingBooked struct {
	BookingID   string    `json:"booking_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Message     string    `json:"message,omitempty"`
	TimeZone    string    `json:"timezone"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	EventID     string    `json:"calendar_event_id"`
	MeetingLink string    `json:"meeting_link,omitempty"`
}

// ContactReceived is the payload of EventContactReceived.
type ContactReceived struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company,omitempty"`
	Interest  string `json:"interest,omitempty"`
	Message   string `json:"message"`
}
