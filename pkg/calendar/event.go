package calendar

import (
	"slices"
	"time"

	"github.com/mockassist/mockassist/pkg/recurrence"
	"github.com/samber/mo"
)

type Scope string

const (
	ScopeThis          Scope = "this"
	ScopeThisAndFuture Scope = "this_and_future"
	ScopeAll           Scope = "all"
)

// Fields are the user-visible properties shared by events, modified
// occurrences and materialized occurrences. All-day events span
// [Start, End) with both ends at midnight in the event timezone.
type Fields struct {
	Title       string
	Description string
	Location    string
	Attendees   []string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Timezone    string
}

func (f Fields) Clone() Fields {
	out := f
	if f.Attendees != nil {
		out.Attendees = slices.Clone(f.Attendees)
	}
	return out
}

func (f Fields) location() (*time.Location, error) {
	return time.LoadLocation(f.Timezone)
}

// Event is a standalone event or the parent of a recurring series.
type Event struct {
	ID         string
	CalendarID string
	Fields
	Recurrence     *recurrence.Rule
	ExceptionDates map[recurrence.Date]struct{}
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

func (e Event) IsRecurring() bool {
	return e.Recurrence != nil
}

func (e Event) IsDeleted() bool {
	return e.DeletedAt != nil
}

// VisibleAt reports whether the event was not yet tombstoned at t.
func (e Event) VisibleAt(t time.Time) bool {
	return e.DeletedAt == nil || e.DeletedAt.After(t)
}

func (e Event) Clone() Event {
	out := e
	out.Fields = e.Fields.Clone()
	if e.Recurrence != nil {
		rule := e.Recurrence.Clone()
		out.Recurrence = &rule
	}
	if e.ExceptionDates != nil {
		out.ExceptionDates = make(map[recurrence.Date]struct{}, len(e.ExceptionDates))
		for d := range e.ExceptionDates {
			out.ExceptionDates[d] = struct{}{}
		}
	}
	if e.DeletedAt != nil {
		deletedAt := *e.DeletedAt
		out.DeletedAt = &deletedAt
	}
	return out
}

// AnchorDate is the date of the event start in the event timezone.
func (e Event) AnchorDate(loc *time.Location) recurrence.Date {
	return recurrence.DateOf(e.Start.In(loc))
}

func (e Event) IsException(d recurrence.Date) bool {
	_, ok := e.ExceptionDates[d]
	return ok
}

// Exceptions returns the exception dates in ascending order.
func (e Event) Exceptions() []recurrence.Date {
	out := make([]recurrence.Date, 0, len(e.ExceptionDates))
	for d := range e.ExceptionDates {
		out = append(out, d)
	}
	slices.SortFunc(out, recurrence.Date.Compare)
	return out
}

func (e *Event) addException(d recurrence.Date) {
	if e.ExceptionDates == nil {
		e.ExceptionDates = make(map[recurrence.Date]struct{})
	}
	e.ExceptionDates[d] = struct{}{}
}

// EventPatch holds the subset of fields an update sets. Recurrence set to
// mo.Some(nil) turns a series into a single event.
type EventPatch struct {
	Title       mo.Option[string]
	Description mo.Option[string]
	Location    mo.Option[string]
	Attendees   mo.Option[[]string]
	Start       mo.Option[time.Time]
	End         mo.Option[time.Time]
	AllDay      mo.Option[bool]
	Timezone    mo.Option[string]
	Recurrence  mo.Option[*recurrence.Rule]
}

// IsEmpty reports whether the patch sets no field at all.
func (p EventPatch) IsEmpty() bool {
	return !p.Title.IsPresent() && !p.Description.IsPresent() && !p.Location.IsPresent() &&
		!p.Attendees.IsPresent() && !p.Start.IsPresent() && !p.End.IsPresent() &&
		!p.AllDay.IsPresent() && !p.Timezone.IsPresent() && !p.Recurrence.IsPresent()
}

// Apply returns f with the patch applied. Moving the start without an
// explicit end keeps the duration.
func (p EventPatch) Apply(f Fields) Fields {
	out := f.Clone()
	if v, ok := p.Title.Get(); ok {
		out.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		out.Description = v
	}
	if v, ok := p.Location.Get(); ok {
		out.Location = v
	}
	if v, ok := p.Attendees.Get(); ok {
		out.Attendees = slices.Clone(v)
	}
	if v, ok := p.AllDay.Get(); ok {
		out.AllDay = v
	}
	if v, ok := p.Timezone.Get(); ok {
		out.Timezone = v
	}
	if v, ok := p.Start.Get(); ok {
		duration := f.End.Sub(f.Start)
		out.Start = v
		out.End = v.Add(duration)
	}
	if v, ok := p.End.Get(); ok {
		out.End = v
	}
	return out
}

// Merge returns p overlaid with o; fields set in o win.
func (p EventPatch) Merge(o EventPatch) EventPatch {
	return EventPatch{
		Title:       orOption(o.Title, p.Title),
		Description: orOption(o.Description, p.Description),
		Location:    orOption(o.Location, p.Location),
		Attendees:   orOption(o.Attendees, p.Attendees),
		Start:       orOption(o.Start, p.Start),
		End:         orOption(o.End, p.End),
		AllDay:      orOption(o.AllDay, p.AllDay),
		Timezone:    orOption(o.Timezone, p.Timezone),
		Recurrence:  orOption(o.Recurrence, p.Recurrence),
	}
}

func orOption[T any](preferred, fallback mo.Option[T]) mo.Option[T] {
	if preferred.IsPresent() {
		return preferred
	}
	return fallback
}

// ModifiedOccurrence overrides one occurrence of a series. RecurrenceID is
// the original, unmodified occurrence date.
type ModifiedOccurrence struct {
	ID            string
	ParentEventID string
	RecurrenceID  recurrence.Date
	Patch         EventPatch
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Occurrence is a materialized query result; it is never stored.
type Occurrence struct {
	EventID        string
	CalendarID     string
	OccurrenceDate recurrence.Date
	Fields
	IsRecurring          bool
	IsModified           bool
	ModifiedOccurrenceID string
	// Recurrence is only set on series summaries returned without expansion.
	Recurrence *recurrence.Rule
}
