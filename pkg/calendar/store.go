package calendar

import (
	"maps"
	"slices"
	"strings"

	"github.com/mockassist/mockassist/pkg/recurrence"
)

type occurrenceKey struct {
	ParentEventID string
	RecurrenceID  recurrence.Date
}

// Store keeps calendars, events and modified occurrences in memory. Values
// are copied on the way in and out. Store is not safe for concurrent use;
// Service serializes access to it.
type Store struct {
	calendars map[string]Calendar
	events    map[string]Event
	modified  map[occurrenceKey]ModifiedOccurrence
	// parent event id -> recurrence ids of its modified occurrences
	byParent map[string]map[recurrence.Date]struct{}
}

func NewStore() *Store {
	return &Store{
		calendars: make(map[string]Calendar),
		events:    make(map[string]Event),
		modified:  make(map[occurrenceKey]ModifiedOccurrence),
		byParent:  make(map[string]map[recurrence.Date]struct{}),
	}
}

// WithTransaction runs fn against the store and restores the previous state
// if fn fails, so a rejected mutation leaves no trace.
func (s *Store) WithTransaction(fn func(tx *Store) error) error {
	calendars := maps.Clone(s.calendars)
	events := make(map[string]Event, len(s.events))
	for id, event := range s.events {
		events[id] = event.Clone()
	}
	modified := maps.Clone(s.modified)
	byParent := make(map[string]map[recurrence.Date]struct{}, len(s.byParent))
	for id, dates := range s.byParent {
		byParent[id] = maps.Clone(dates)
	}

	if err := fn(s); err != nil {
		s.calendars = calendars
		s.events = events
		s.modified = modified
		s.byParent = byParent
		return err
	}
	return nil
}

func (s *Store) PutCalendar(calendar Calendar) {
	s.calendars[calendar.ID] = calendar
}

func (s *Store) Calendar(id string) (Calendar, error) {
	calendar, ok := s.calendars[id]
	if !ok {
		return Calendar{}, &NotFoundError{Kind: "calendar", ID: id}
	}
	return calendar, nil
}

func (s *Store) Calendars() []Calendar {
	out := slices.Collect(maps.Values(s.calendars))
	slices.SortFunc(out, func(a, b Calendar) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) PutEvent(event Event) {
	s.events[event.ID] = event.Clone()
}

// Event returns the event with the given id, tombstoned or not.
func (s *Store) Event(id string) (Event, bool) {
	event, ok := s.events[id]
	if !ok {
		return Event{}, false
	}
	return event.Clone(), true
}

// ActiveEvent returns the event unless it is missing or tombstoned.
func (s *Store) ActiveEvent(id string) (Event, error) {
	event, ok := s.Event(id)
	if !ok || event.IsDeleted() {
		return Event{}, &NotFoundError{Kind: "event", ID: id}
	}
	return event, nil
}

// Events returns the events of the given calendars ordered by id. No
// calendar ids means every calendar.
func (s *Store) Events(calendarIDs ...string) []Event {
	out := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		if len(calendarIDs) > 0 && !slices.Contains(calendarIDs, event.CalendarID) {
			continue
		}
		out = append(out, event.Clone())
	}
	slices.SortFunc(out, func(a, b Event) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) PutModifiedOccurrence(m ModifiedOccurrence) {
	key := occurrenceKey{ParentEventID: m.ParentEventID, RecurrenceID: m.RecurrenceID}
	s.modified[key] = m
	if s.byParent[m.ParentEventID] == nil {
		s.byParent[m.ParentEventID] = make(map[recurrence.Date]struct{})
	}
	s.byParent[m.ParentEventID][m.RecurrenceID] = struct{}{}
}

func (s *Store) ModifiedOccurrence(parentID string, date recurrence.Date) (ModifiedOccurrence, bool) {
	m, ok := s.modified[occurrenceKey{ParentEventID: parentID, RecurrenceID: date}]
	return m, ok
}

// ModifiedOccurrences returns the overrides of one series by recurrence id.
func (s *Store) ModifiedOccurrences(parentID string) []ModifiedOccurrence {
	dates := slices.SortedFunc(maps.Keys(s.byParent[parentID]), recurrence.Date.Compare)
	out := make([]ModifiedOccurrence, 0, len(dates))
	for _, date := range dates {
		out = append(out, s.modified[occurrenceKey{ParentEventID: parentID, RecurrenceID: date}])
	}
	return out
}

// ModifiedOccurrenceIDs is the back-set from a series to its overrides.
func (s *Store) ModifiedOccurrenceIDs(parentID string) []string {
	var ids []string
	for _, m := range s.ModifiedOccurrences(parentID) {
		ids = append(ids, m.ID)
	}
	return ids
}

func (s *Store) DeleteModifiedOccurrence(parentID string, date recurrence.Date) bool {
	key := occurrenceKey{ParentEventID: parentID, RecurrenceID: date}
	if _, ok := s.modified[key]; !ok {
		return false
	}
	delete(s.modified, key)
	delete(s.byParent[parentID], date)
	if len(s.byParent[parentID]) == 0 {
		delete(s.byParent, parentID)
	}
	return true
}

// ReassignModifiedOccurrence moves an override to another series, keeping
// its id and recurrence id.
func (s *Store) ReassignModifiedOccurrence(parentID string, date recurrence.Date, newParentID string) bool {
	m, ok := s.ModifiedOccurrence(parentID, date)
	if !ok {
		return false
	}
	s.DeleteModifiedOccurrence(parentID, date)
	m.ParentEventID = newParentID
	s.PutModifiedOccurrence(m)
	return true
}
