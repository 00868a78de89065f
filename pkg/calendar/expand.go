package calendar

import (
	"cmp"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/mockassist/mockassist/pkg/recurrence"
)

// Expand materializes the occurrences of one event that intersect
// [from, to], with exceptions removed and overrides applied.
func Expand(store *Store, event Event, from, to time.Time) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, &ValidationError{Field: "window", EventID: event.ID, Reason: "end is before start"}
	}
	loc, err := event.location()
	if err != nil {
		return nil, &ValidationError{Field: "timezone", EventID: event.ID, Reason: err.Error()}
	}

	if !event.IsRecurring() {
		occ := Occurrence{
			EventID:        event.ID,
			CalendarID:     event.CalendarID,
			OccurrenceDate: event.AnchorDate(loc),
			Fields:         event.Fields.Clone(),
		}
		if !intersects(occ.Fields, loc, from, to) {
			return nil, nil
		}
		return []Occurrence{occ}, nil
	}

	rule := *event.Recurrence
	anchor := event.AnchorDate(loc)
	fromDate, toDate := dateWindow(event, loc, from, to)

	dates, err := recurrence.Generate(rule, anchor, fromDate, toDate)
	if err != nil {
		return nil, ruleError(event.ID, err)
	}

	overlay := newOverlay(store, event, loc)
	var out []Occurrence
	for date := range WithoutExceptions(dates, event.ExceptionDates) {
		occ := overlay.Resolve(date)
		if intersects(occ.Fields, loc, from, to) {
			out = append(out, occ)
		}
	}

	// overrides moved into the window from an original date outside it
	for _, m := range store.ModifiedOccurrences(event.ID) {
		if !m.RecurrenceID.Before(fromDate) && !m.RecurrenceID.After(toDate) {
			continue
		}
		if event.IsException(m.RecurrenceID) {
			continue
		}
		ok, err := rule.Includes(anchor, m.RecurrenceID)
		if err != nil {
			return nil, ruleError(event.ID, err)
		}
		if !ok {
			continue
		}
		occ := overlay.Resolve(m.RecurrenceID)
		if intersects(occ.Fields, loc, from, to) {
			out = append(out, occ)
		}
	}

	sortOccurrences(out)
	return out, nil
}

// WithoutExceptions drops excluded dates from a generated sequence.
func WithoutExceptions(dates iter.Seq[recurrence.Date], exceptions map[recurrence.Date]struct{}) iter.Seq[recurrence.Date] {
	return func(yield func(recurrence.Date) bool) {
		for date := range dates {
			if _, ok := exceptions[date]; ok {
				continue
			}
			if !yield(date) {
				return
			}
		}
	}
}

// overlay resolves an occurrence date to the parent projection, with the
// stored override for that date applied on top.
type overlay struct {
	store *Store
	event Event
	loc   *time.Location
}

func newOverlay(store *Store, event Event, loc *time.Location) overlay {
	return overlay{store: store, event: event, loc: loc}
}

func (o overlay) Resolve(date recurrence.Date) Occurrence {
	occ := Occurrence{
		EventID:        o.event.ID,
		CalendarID:     o.event.CalendarID,
		OccurrenceDate: date,
		Fields:         project(o.event, date, o.loc),
		IsRecurring:    true,
	}
	if m, ok := o.store.ModifiedOccurrence(o.event.ID, date); ok {
		occ.Fields = m.Patch.Apply(occ.Fields)
		occ.IsModified = true
		occ.ModifiedOccurrenceID = m.ID
	}
	return occ
}

// project places the parent event on date, keeping its wall clock time and
// duration in the event timezone.
func project(event Event, date recurrence.Date, loc *time.Location) Fields {
	f := event.Fields.Clone()
	start := event.Start.In(loc)
	if event.AllDay {
		days := recurrence.DateOf(start).DaysUntil(recurrence.DateOf(event.End.In(loc)))
		f.Start = date.Midnight(loc)
		f.End = date.AddDays(max(days, 1)).Midnight(loc)
		return f
	}
	f.Start = date.At(start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), loc)
	f.End = f.Start.Add(event.End.Sub(event.Start))
	return f
}

// intersects reports whether f overlaps [from, to]. All-day spans compare
// by calendar date only.
func intersects(f Fields, loc *time.Location, from, to time.Time) bool {
	if f.AllDay {
		first := recurrence.DateOf(f.Start.In(loc))
		last := recurrence.DateOf(f.End.In(loc)).AddDays(-1)
		if last.Before(first) {
			last = first
		}
		return !last.Before(recurrence.DateOf(from)) && !first.After(recurrence.DateOf(to))
	}
	return !f.Start.After(to) && !f.End.Before(from)
}

// dateWindow converts a time window into the occurrence dates that can
// intersect it, reaching back far enough to catch occurrences that started
// earlier and are still running at from.
func dateWindow(event Event, loc *time.Location, from, to time.Time) (recurrence.Date, recurrence.Date) {
	if event.AllDay {
		span := recurrence.DateOf(event.Start.In(loc)).DaysUntil(recurrence.DateOf(event.End.In(loc)))
		return recurrence.DateOf(from).AddDays(-max(span, 1)), recurrence.DateOf(to)
	}
	span := int(event.End.Sub(event.Start)/(24*time.Hour)) + 1
	return recurrence.DateOf(from.In(loc)).AddDays(-span), recurrence.DateOf(to.In(loc))
}

func sortOccurrences(occurrences []Occurrence) {
	slices.SortStableFunc(occurrences, func(a, b Occurrence) int {
		return cmp.Or(
			a.Start.Compare(b.Start),
			strings.Compare(a.EventID, b.EventID),
			a.OccurrenceDate.Compare(b.OccurrenceDate),
		)
	})
}
