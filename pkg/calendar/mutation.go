package calendar

import (
	"slices"

	"github.com/mockassist/mockassist/pkg/recurrence"
)

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Mutation is one of CreateMutation, UpdateMutation or DeleteMutation.
type Mutation interface {
	Operation() Operation
	TargetEventID() string
	mutation()
}

type CreateMutation struct {
	// EventID is generated when empty.
	EventID        string
	CalendarID     string
	Fields         Fields
	Recurrence     *recurrence.Rule
	ExceptionDates []recurrence.Date
}

func (m CreateMutation) Operation() Operation  { return OperationCreate }
func (m CreateMutation) TargetEventID() string { return m.EventID }
func (CreateMutation) mutation()               {}

// UpdateMutation patches an event. For a series, Scope selects which
// occurrences change and RecurrenceID names the occurrence the scope is
// relative to. RecurrenceExceptions are removed from the series in the same
// step.
type UpdateMutation struct {
	EventID              string
	Scope                Scope
	RecurrenceID         *recurrence.Date
	Patch                EventPatch
	RecurrenceExceptions []recurrence.Date
}

func (m UpdateMutation) Operation() Operation  { return OperationUpdate }
func (m UpdateMutation) TargetEventID() string { return m.EventID }
func (UpdateMutation) mutation()               {}

type DeleteMutation struct {
	EventID      string
	Scope        Scope
	RecurrenceID *recurrence.Date
}

func (m DeleteMutation) Operation() Operation  { return OperationDelete }
func (m DeleteMutation) TargetEventID() string { return m.EventID }
func (DeleteMutation) mutation()               {}

type MutationResult struct {
	CreatedEventIDs []string
	UpdatedEventIDs []string
	DeletedEventIDs []string
}

func (r *MutationResult) merge(o MutationResult) {
	r.CreatedEventIDs = appendNew(r.CreatedEventIDs, o.CreatedEventIDs)
	r.UpdatedEventIDs = appendNew(r.UpdatedEventIDs, o.UpdatedEventIDs)
	r.DeletedEventIDs = appendNew(r.DeletedEventIDs, o.DeletedEventIDs)
}

func appendNew(ids, more []string) []string {
	for _, id := range more {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
