package calendar

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mockassist/mockassist/internal/utils"
	"github.com/mockassist/mockassist/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

type ResolverConfig struct {
	DefaultTimezone string
	// NearestSearchDays bounds the search for the occurrence closest to the
	// current time when a scoped mutation has no recurrence id.
	NearestSearchDays int
}

// Resolver applies mutations to a Store. Each mutation commits completely
// or not at all.
type Resolver struct {
	clock             utils.Clock
	newID             func() string
	defaultTimezone   string
	nearestSearchDays int
}

func NewResolver(clock utils.Clock, cfg ResolverConfig) *Resolver {
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if cfg.NearestSearchDays <= 0 {
		cfg.NearestSearchDays = 3660
	}
	return &Resolver{
		clock:             clock,
		newID:             uuid.NewString,
		defaultTimezone:   cfg.DefaultTimezone,
		nearestSearchDays: cfg.NearestSearchDays,
	}
}

func (r *Resolver) Apply(store *Store, mutation Mutation) (MutationResult, error) {
	if mutation == nil {
		return MutationResult{}, &ValidationError{Field: "operation", Reason: "required"}
	}
	var result MutationResult
	err := store.WithTransaction(func(tx *Store) error {
		var err error
		switch m := mutation.(type) {
		case CreateMutation:
			result, err = r.create(tx, m)
		case UpdateMutation:
			result, err = r.update(tx, m)
		case DeleteMutation:
			result, err = r.delete(tx, m)
		default:
			err = &ValidationError{Field: "operation", Reason: fmt.Sprintf("unsupported mutation %T", mutation)}
		}
		return err
	})
	if err != nil {
		log.Debugf("Mutation %s on event %q rejected: %v", mutation.Operation(), mutation.TargetEventID(), err)
		return MutationResult{}, err
	}
	return result, nil
}

func (r *Resolver) create(tx *Store, m CreateMutation) (MutationResult, error) {
	if m.CalendarID == "" {
		return MutationResult{}, &ValidationError{Field: "calendar_id", EventID: m.EventID, Reason: "required"}
	}
	calendar, err := tx.Calendar(m.CalendarID)
	if err != nil {
		return MutationResult{}, err
	}

	id := m.EventID
	if id == "" {
		id = r.newID()
	} else if _, exists := tx.Event(id); exists {
		return MutationResult{}, &ValidationError{Field: "event_id", EventID: id, Reason: "already exists"}
	}

	fields := m.Fields.Clone()
	if fields.Timezone == "" {
		fields.Timezone = calendar.Timezone
	}
	if fields.Timezone == "" {
		fields.Timezone = r.defaultTimezone
	}
	fields, loc, err := normalizeFields(id, fields)
	if err != nil {
		return MutationResult{}, err
	}

	event := Event{ID: id, CalendarID: m.CalendarID, Fields: fields}
	if m.Recurrence != nil {
		rule := m.Recurrence.Normalized()
		if err := rule.Validate(); err != nil {
			return MutationResult{}, ruleError(id, err)
		}
		event.Recurrence = &rule
	}
	if len(m.ExceptionDates) > 0 && !event.IsRecurring() {
		return MutationResult{}, &ValidationError{Field: "recurrence_exceptions", EventID: id, Reason: "event is not recurring"}
	}
	for _, date := range m.ExceptionDates {
		if err := checkGenerated(event, loc, date, "recurrence_exceptions"); err != nil {
			return MutationResult{}, err
		}
		event.addException(date)
	}

	now := r.clock.Now()
	event.CreatedAt, event.UpdatedAt = now, now
	tx.PutEvent(event)
	log.Debugf("Created event %s in calendar %s", id, m.CalendarID)
	return MutationResult{CreatedEventIDs: []string{id}}, nil
}

func (r *Resolver) update(tx *Store, m UpdateMutation) (MutationResult, error) {
	event, err := tx.ActiveEvent(m.EventID)
	if err != nil {
		return MutationResult{}, err
	}
	now := r.clock.Now()

	if !event.IsRecurring() {
		if err := checkSingleEventScope(event.ID, m.Scope, m.RecurrenceID); err != nil {
			return MutationResult{}, err
		}
		if len(m.RecurrenceExceptions) > 0 {
			return MutationResult{}, &ValidationError{Field: "recurrence_exceptions", EventID: event.ID, Reason: "event is not recurring"}
		}
		return r.updateAll(tx, event, m.Patch, now)
	}

	scope, err := scopeOrAll(event.ID, m.Scope)
	if err != nil {
		return MutationResult{}, err
	}
	if scope == ScopeThis && m.Patch.Recurrence.IsPresent() {
		return MutationResult{}, &ValidationError{Field: "recurrence", EventID: event.ID, Reason: "a single occurrence cannot change the series rule"}
	}
	loc, err := event.location()
	if err != nil {
		return MutationResult{}, &ValidationError{Field: "timezone", EventID: event.ID, Reason: err.Error()}
	}

	needsTarget := scope == ScopeThisAndFuture || (scope == ScopeThis && !m.Patch.IsEmpty())
	var target recurrence.Date
	if m.RecurrenceID != nil {
		target = *m.RecurrenceID
		if err := checkOccurrence(event, loc, target); err != nil {
			return MutationResult{}, err
		}
	} else if needsTarget {
		if target, err = r.nearest(event, loc); err != nil {
			return MutationResult{}, err
		}
	}

	for _, date := range m.RecurrenceExceptions {
		if err := checkGenerated(event, loc, date, "recurrence_exceptions"); err != nil {
			return MutationResult{}, err
		}
		if needsTarget && date == target {
			return MutationResult{}, &ConsistencyError{
				EventID:     event.ID,
				Date:        date,
				Conflicting: []string{"recurrence_exceptions", fmt.Sprintf("recurrence_scope=%s", scope)},
			}
		}
	}
	for _, date := range m.RecurrenceExceptions {
		event.addException(date)
		tx.DeleteModifiedOccurrence(event.ID, date)
	}

	switch scope {
	case ScopeThis:
		if !m.Patch.IsEmpty() {
			if err := r.overrideOccurrence(tx, event, loc, target, m.Patch, now); err != nil {
				return MutationResult{}, err
			}
		}
		event.UpdatedAt = now
		tx.PutEvent(event)
		return MutationResult{UpdatedEventIDs: []string{event.ID}}, nil
	case ScopeThisAndFuture:
		return r.splitSeries(tx, event, loc, target, m.Patch, now)
	default:
		return r.updateAll(tx, event, m.Patch, now)
	}
}

// overrideOccurrence stores patch as the override for target, merging it
// with an earlier override of the same occurrence.
func (r *Resolver) overrideOccurrence(tx *Store, event Event, loc *time.Location, target recurrence.Date, patch EventPatch, now time.Time) error {
	m, ok := tx.ModifiedOccurrence(event.ID, target)
	if ok {
		m.Patch = m.Patch.Merge(patch)
		m.UpdatedAt = now
	} else {
		m = ModifiedOccurrence{
			ID:            r.newID(),
			ParentEventID: event.ID,
			RecurrenceID:  target,
			Patch:         patch,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	if _, _, err := normalizeFields(event.ID, m.Patch.Apply(project(event, target, loc))); err != nil {
		return err
	}
	tx.PutModifiedOccurrence(m)
	return nil
}

// updateAll applies patch to the event itself. Overrides and exceptions the
// new rule no longer generates are dropped.
func (r *Resolver) updateAll(tx *Store, event Event, patch EventPatch, now time.Time) (MutationResult, error) {
	before := event.Clone()

	fields, _, err := normalizeFields(event.ID, patch.Apply(event.Fields))
	if err != nil {
		return MutationResult{}, err
	}
	event.Fields = fields

	if rule, ok := patch.Recurrence.Get(); ok {
		if rule == nil {
			event.Recurrence = nil
		} else {
			normalized := rule.Normalized()
			if err := normalized.Validate(); err != nil {
				return MutationResult{}, ruleError(event.ID, err)
			}
			event.Recurrence = &normalized
		}
	}

	if err := prune(tx, &event, before); err != nil {
		return MutationResult{}, err
	}
	event.UpdatedAt = now
	tx.PutEvent(event)
	return MutationResult{UpdatedEventIDs: []string{event.ID}}, nil
}

// splitSeries ends the series the day before target and continues it as a
// new series anchored at target, to which patch is applied.
func (r *Resolver) splitSeries(tx *Store, event Event, loc *time.Location, target recurrence.Date, patch EventPatch, now time.Time) (MutationResult, error) {
	rule := *event.Recurrence
	anchor := event.AnchorDate(loc)
	first, ok, err := rule.First(anchor)
	if err != nil {
		return MutationResult{}, ruleError(event.ID, err)
	}
	if !ok || !target.After(first) {
		log.Warnf("Event %s: this_and_future from %s covers the whole series, updating all occurrences", event.ID, target)
		return r.updateAll(tx, event, patch, now)
	}

	pinned := rule.ForAnchor(anchor)
	successorRule := pinned.Clone()
	if pinned.EndType == recurrence.EndCount {
		consumed, err := rule.CountBefore(anchor, target)
		if err != nil {
			return MutationResult{}, ruleError(event.ID, err)
		}
		successorRule.Count = pinned.Count - consumed
	}

	successor := Event{
		ID:         r.newID(),
		CalendarID: event.CalendarID,
		Fields:     project(event, target, loc),
		Recurrence: &successorRule,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, date := range event.Exceptions() {
		if !date.Before(target) {
			successor.addException(date)
			delete(event.ExceptionDates, date)
		}
	}
	for _, m := range tx.ModifiedOccurrences(event.ID) {
		if !m.RecurrenceID.Before(target) {
			tx.ReassignModifiedOccurrence(event.ID, m.RecurrenceID, successor.ID)
		}
	}

	truncated := pinned.TruncateBefore(target)
	event.Recurrence = &truncated
	event.UpdatedAt = now
	tx.PutEvent(event)
	tx.PutEvent(successor)

	if _, err := r.updateAll(tx, successor, patch, now); err != nil {
		return MutationResult{}, err
	}
	if err := checkSuccessorStart(tx, successor.ID, event.ID, target); err != nil {
		return MutationResult{}, err
	}
	log.Debugf("Split event %s at %s into %s", event.ID, target, successor.ID)
	return MutationResult{
		CreatedEventIDs: []string{successor.ID},
		UpdatedEventIDs: []string{event.ID},
	}, nil
}

// checkSuccessorStart keeps the new series from reaching back into the dates
// the truncated series still owns.
func checkSuccessorStart(tx *Store, successorID, parentID string, target recurrence.Date) error {
	successor, _ := tx.Event(successorID)
	loc, err := successor.location()
	if err != nil {
		return &ValidationError{Field: "timezone", EventID: parentID, Reason: err.Error()}
	}
	if successor.AnchorDate(loc).Before(target) {
		return &ValidationError{Field: "start", EventID: parentID, Date: &target, Reason: "the new series cannot start before the split date"}
	}
	return nil
}

func (r *Resolver) delete(tx *Store, m DeleteMutation) (MutationResult, error) {
	event, err := tx.ActiveEvent(m.EventID)
	if err != nil {
		return MutationResult{}, err
	}
	now := r.clock.Now()

	if !event.IsRecurring() {
		if err := checkSingleEventScope(event.ID, m.Scope, m.RecurrenceID); err != nil {
			return MutationResult{}, err
		}
		return tombstone(tx, event, now), nil
	}

	scope, err := scopeOrAll(event.ID, m.Scope)
	if err != nil {
		return MutationResult{}, err
	}
	if scope == ScopeAll {
		return tombstone(tx, event, now), nil
	}

	loc, err := event.location()
	if err != nil {
		return MutationResult{}, &ValidationError{Field: "timezone", EventID: event.ID, Reason: err.Error()}
	}
	var target recurrence.Date
	if m.RecurrenceID != nil {
		target = *m.RecurrenceID
		if err := checkOccurrence(event, loc, target); err != nil {
			return MutationResult{}, err
		}
	} else if target, err = r.nearest(event, loc); err != nil {
		return MutationResult{}, err
	}

	if scope == ScopeThis {
		event.addException(target)
		tx.DeleteModifiedOccurrence(event.ID, target)
		event.UpdatedAt = now
		tx.PutEvent(event)
		return MutationResult{UpdatedEventIDs: []string{event.ID}}, nil
	}

	rule := *event.Recurrence
	anchor := event.AnchorDate(loc)
	first, ok, err := rule.First(anchor)
	if err != nil {
		return MutationResult{}, ruleError(event.ID, err)
	}
	if !ok || !target.After(first) {
		log.Warnf("Event %s: this_and_future delete from %s covers the whole series, deleting it", event.ID, target)
		return tombstone(tx, event, now), nil
	}

	truncated := rule.ForAnchor(anchor).TruncateBefore(target)
	event.Recurrence = &truncated
	for _, date := range event.Exceptions() {
		if !date.Before(target) {
			delete(event.ExceptionDates, date)
		}
	}
	for _, m := range tx.ModifiedOccurrences(event.ID) {
		if !m.RecurrenceID.Before(target) {
			tx.DeleteModifiedOccurrence(event.ID, m.RecurrenceID)
		}
	}
	event.UpdatedAt = now
	tx.PutEvent(event)
	return MutationResult{UpdatedEventIDs: []string{event.ID}}, nil
}

// nearest picks the remaining occurrence closest to the current time; a
// tie goes to the later one.
func (r *Resolver) nearest(event Event, loc *time.Location) (recurrence.Date, error) {
	ref := recurrence.DateOf(r.clock.Now().In(loc))
	dates, err := recurrence.Generate(*event.Recurrence, event.AnchorDate(loc),
		ref.AddDays(-r.nearestSearchDays), ref.AddDays(r.nearestSearchDays))
	if err != nil {
		return recurrence.Date{}, ruleError(event.ID, err)
	}

	var before recurrence.Date
	found := false
	for date := range WithoutExceptions(dates, event.ExceptionDates) {
		if date.Before(ref) {
			before, found = date, true
			continue
		}
		if !found || ref.DaysUntil(date) <= before.DaysUntil(ref) {
			return date, nil
		}
		return before, nil
	}
	if found {
		return before, nil
	}
	return recurrence.Date{}, &ValidationError{Field: "recurrence_id", EventID: event.ID, Reason: "no occurrence near the current time"}
}

func tombstone(tx *Store, event Event, now time.Time) MutationResult {
	event.DeletedAt = &now
	event.UpdatedAt = now
	tx.PutEvent(event)
	log.Debugf("Deleted event %s", event.ID)
	return MutationResult{DeletedEventIDs: []string{event.ID}}
}

// prune drops overrides and exceptions that the event no longer generates
// after its rule or anchor changed. Turning a series into a single event
// drops all of them.
func prune(tx *Store, event *Event, before Event) error {
	if !event.IsRecurring() {
		for _, m := range tx.ModifiedOccurrences(event.ID) {
			tx.DeleteModifiedOccurrence(event.ID, m.RecurrenceID)
		}
		event.ExceptionDates = nil
		return nil
	}

	loc, err := event.location()
	if err != nil {
		return &ValidationError{Field: "timezone", EventID: event.ID, Reason: err.Error()}
	}
	anchor := event.AnchorDate(loc)
	if before.IsRecurring() && before.Recurrence.Equal(*event.Recurrence) {
		if beforeLoc, err := before.location(); err == nil && before.AnchorDate(beforeLoc) == anchor {
			return nil
		}
	}

	rule := *event.Recurrence
	for _, m := range tx.ModifiedOccurrences(event.ID) {
		ok, err := rule.Includes(anchor, m.RecurrenceID)
		if err != nil {
			return ruleError(event.ID, err)
		}
		if !ok {
			tx.DeleteModifiedOccurrence(event.ID, m.RecurrenceID)
		}
	}
	for date := range event.ExceptionDates {
		ok, err := rule.Includes(anchor, date)
		if err != nil {
			return ruleError(event.ID, err)
		}
		if !ok {
			delete(event.ExceptionDates, date)
		}
	}
	return nil
}

// normalizeFields validates timing and snaps all-day events to whole days
// in the event timezone.
func normalizeFields(eventID string, f Fields) (Fields, *time.Location, error) {
	loc, err := f.location()
	if err != nil {
		return Fields{}, nil, &ValidationError{Field: "timezone", EventID: eventID, Reason: err.Error()}
	}
	if f.Start.IsZero() {
		return Fields{}, nil, &ValidationError{Field: "start", EventID: eventID, Reason: "required"}
	}

	if f.AllDay {
		first := recurrence.DateOf(f.Start.In(loc))
		end := first.AddDays(1)
		if !f.End.IsZero() {
			end = recurrence.DateOf(f.End.In(loc))
		}
		if end.Before(first) {
			return Fields{}, nil, &ValidationError{Field: "end", EventID: eventID, Reason: "end is before start"}
		}
		if end == first {
			end = first.AddDays(1)
		}
		f.Start, f.End = first.Midnight(loc), end.Midnight(loc)
		return f, loc, nil
	}

	if f.End.IsZero() {
		f.End = f.Start
	}
	if f.End.Before(f.Start) {
		return Fields{}, nil, &ValidationError{Field: "end", EventID: eventID, Reason: "end is before start"}
	}
	f.Start, f.End = f.Start.In(loc), f.End.In(loc)
	return f, loc, nil
}

// checkGenerated reports whether the unmodified rule produces date.
func checkGenerated(event Event, loc *time.Location, date recurrence.Date, field string) error {
	ok, err := event.Recurrence.Includes(event.AnchorDate(loc), date)
	if err != nil {
		return ruleError(event.ID, err)
	}
	if !ok {
		return &ValidationError{Field: field, EventID: event.ID, Date: &date, Reason: "occurrence not found"}
	}
	return nil
}

// checkOccurrence reports whether date is a remaining occurrence of the
// series.
func checkOccurrence(event Event, loc *time.Location, date recurrence.Date) error {
	if err := checkGenerated(event, loc, date, "recurrence_id"); err != nil {
		return err
	}
	if event.IsException(date) {
		return occurrenceNotFound(event.ID, date)
	}
	return nil
}

func scopeOrAll(eventID string, scope Scope) (Scope, error) {
	switch scope {
	case "":
		return ScopeAll, nil
	case ScopeThis, ScopeThisAndFuture, ScopeAll:
		return scope, nil
	}
	return "", &ValidationError{Field: "recurrence_scope", EventID: eventID, Reason: fmt.Sprintf("unknown scope %q", scope)}
}

// checkSingleEventScope rejects occurrence addressing on a single event.
func checkSingleEventScope(eventID string, scope Scope, recurrenceID *recurrence.Date) error {
	if scope != "" || recurrenceID != nil {
		return &ValidationError{Field: "recurrence_scope", EventID: eventID, Reason: "event is not recurring"}
	}
	return nil
}
