package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/tonyphoesis/phoesis-website/libs/outbox"
	"github.com/tonyphoesis/phoesis-website/services/notification-service/internal/email"
)

const timeLayout = "Monday, January 2, 2006 at 3:04 PM MST"

// BookingMessages returns the team notice and, when the requester left an email, their confirmation.
func BookingMessages(evt outbox.MeetingBooked, team []string, officeZone *time.Location) []email.Message {
	requesterZone := officeZone
	if loc, err := time.LoadLocation(evt.TimeZone); err == nil && evt.TimeZone != "" {
		requesterZone = loc
	}

	var details strings.Builder
	fmt.Fprintf(&details, "Name: %s\n", evt.Name)
	fmt.Fprintf(&details, "Email: %s\n", evt.Email)
	if evt.Phone != "" {
		fmt.Fprintf(&details, "Phone: %s\n", evt.Phone)
	}
	fmt.Fprintf(&details, "When: %s\n", evt.StartTime.In(officeZone).Format(timeLayout))
	fmt.Fprintf(&details, "Requester time: %s (%s)\n", evt.StartTime.In(requesterZone).Format(timeLayout), requesterZone.String())
	if evt.MeetingLink != "" {
		fmt.Fprintf(&details, "Meeting link: %s\n", evt.MeetingLink)
	}
	if evt.Message != "" {
		fmt.Fprintf(&details, "\nMessage:\n%s\n", evt.Message)
	}

	var out []email.Message
	if len(team) > 0 {
		out = append(out, email.Message{
			To:      team,
			ReplyTo: evt.Email,
			Subject: fmt.Sprintf("New meeting booked with %s", evt.Name),
			Body:    details.String(),
		})
	}
	if evt.Email != "" {
		var body strings.Builder
		fmt.Fprintf(&body, "Hi %s,\n\n", evt.Name)
		fmt.Fprintf(&body, "Your meeting with Phoesis is confirmed for %s.\n", evt.StartTime.In(requesterZone).Format(timeLayout))
		if evt.MeetingLink != "" {
			fmt.Fprintf(&body, "Join here: %s\n", evt.MeetingLink)
		}
		body.WriteString("\nA calendar invitation has been sent separately.\n")
		out = append(out, email.Message{
			To:      []string{evt.Email},
			Subject: "Your meeting with Phoesis is confirmed",
			Body:    body.String(),
		})
	}
	return out
}

// ContactMessage builds the team notice for a contact form submission.
func ContactMessage(evt outbox.ContactReceived, team []string, officeZone *time.Location, receivedAt time.Time) email.Message {
	interest := evt.Interest
	if interest == "" {
		interest = "general"
	}
	company := evt.Company
	if company == "" {
		company = "Not provided"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Name: %s\n", evt.Name)
	fmt.Fprintf(&body, "Email: %s\n", evt.Email)
	fmt.Fprintf(&body, "Company: %s\n", company)
	fmt.Fprintf(&body, "Interest: %s\n", interest)
	fmt.Fprintf(&body, "\nMessage:\n%s\n", evt.Message)
	fmt.Fprintf(&body, "\nSubmitted via the phoesis.io contact form on %s\n", receivedAt.In(officeZone).Format(timeLayout))

	return email.Message{
		To:      team,
		ReplyTo: evt.Email,
		Subject: fmt.Sprintf("New %s inquiry from %s", interest, evt.Name),
		Body:    body.String(),
	}
}
