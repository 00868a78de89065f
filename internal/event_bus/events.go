package event_bus

import "time"

const (
	CalendarEventCreated EventType = "calendar.event.created"
	CalendarEventUpdated EventType = "calendar.event.updated"
	CalendarEventDeleted EventType = "calendar.event.deleted"
)

// CalendarEventChanged is published after a mutation commits, once per
// affected event.
type CalendarEventChanged struct {
	EventID    string
	CalendarID string
	// At is the simulated time of the change.
	At time.Time
}
