package calendar

import (
	"context"
	"io"
	"time"

	"github.com/mockassist/mockassist/pkg/recurrence"
)

type Calendar struct {
	ID        string
	Name      string
	Timezone  string
	Color     string
	CreatedAt time.Time
}

// Modality is the calendar surface driven by the assistant simulator.
type Modality interface {
	CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	GetCalendars(ctx context.Context) ([]Calendar, error)
	ApplyMutation(ctx context.Context, mutation Mutation) (MutationResult, error)
	QueryRange(ctx context.Context, query Query) ([]Occurrence, error)
	Expand(ctx context.Context, eventID string, from, to time.Time) ([]Occurrence, error)
	GetEvent(ctx context.Context, eventID string) (EventDetails, error)
	ExportICS(ctx context.Context, calendarID string, w io.Writer) error
	ImportICS(ctx context.Context, calendarID string, r io.Reader) (MutationResult, error)
}

// EventDetails is an event together with its overrides, in date order.
type EventDetails struct {
	Event                 Event
	ModifiedOccurrences   []ModifiedOccurrence
	ModifiedOccurrenceIDs []string
	Exceptions            []recurrence.Date
}
