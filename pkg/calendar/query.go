package calendar

import (
	"time"
)

type Query struct {
	// CalendarIDs restricts the query; empty means every calendar.
	CalendarIDs     []string
	Start           time.Time
	End             time.Time
	ExpandRecurring bool
	// AsOf, when set, returns the events that existed at that instant,
	// including those tombstoned since.
	AsOf *time.Time
}

// QueryRange returns the occurrences of every visible event intersecting
// the query window, ordered by start time. Without expansion a series is
// returned once as a summary when any of its occurrences intersects.
func QueryRange(store *Store, q Query) ([]Occurrence, error) {
	if q.End.Before(q.Start) {
		return nil, &ValidationError{Field: "window", Reason: "end is before start"}
	}
	for _, id := range q.CalendarIDs {
		if _, err := store.Calendar(id); err != nil {
			return nil, err
		}
	}

	var out []Occurrence
	for _, event := range store.Events(q.CalendarIDs...) {
		if !visible(event, q.AsOf) {
			continue
		}
		occurrences, err := Expand(store, event, q.Start, q.End)
		if err != nil {
			return nil, err
		}
		if len(occurrences) == 0 {
			continue
		}
		if event.IsRecurring() && !q.ExpandRecurring {
			out = append(out, summary(event))
			continue
		}
		out = append(out, occurrences...)
	}
	sortOccurrences(out)
	return out, nil
}

func visible(event Event, asOf *time.Time) bool {
	if asOf == nil {
		return !event.IsDeleted()
	}
	return !event.CreatedAt.After(*asOf) && event.VisibleAt(*asOf)
}

func summary(event Event) Occurrence {
	occ := Occurrence{
		EventID:     event.ID,
		CalendarID:  event.CalendarID,
		Fields:      event.Fields.Clone(),
		IsRecurring: true,
	}
	if loc, err := event.location(); err == nil {
		occ.OccurrenceDate = event.AnchorDate(loc)
	}
	rule := event.Recurrence.Clone()
	occ.Recurrence = &rule
	return occ
}
