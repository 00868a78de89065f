package calendar

import (
	"strings"
	"time"

	"github.com/mockassist/mockassist/pkg/recurrence"
	"github.com/samber/mo"
)

type CalendarDTO struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Timezone  string    `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Color     string    `json:"color,omitempty" yaml:"color,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero" yaml:"-"`
}

// MutationDTO is the wire form of a mutation. Absent fields leave the event
// untouched on update.
type MutationDTO struct {
	Operation            string            `json:"operation" yaml:"operation"`
	EventID              string            `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	CalendarID           string            `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"`
	RecurrenceScope      string            `json:"recurrence_scope,omitempty" yaml:"recurrence_scope,omitempty"`
	RecurrenceID         *recurrence.Date  `json:"recurrence_id,omitempty" yaml:"recurrence_id,omitempty"`
	Title                *string           `json:"title,omitempty" yaml:"title,omitempty"`
	Description          *string           `json:"description,omitempty" yaml:"description,omitempty"`
	Location             *string           `json:"location,omitempty" yaml:"location,omitempty"`
	Attendees            *[]string         `json:"attendees,omitempty" yaml:"attendees,omitempty"`
	Start                *time.Time        `json:"start,omitempty" yaml:"start,omitempty"`
	End                  *time.Time        `json:"end,omitempty" yaml:"end,omitempty"`
	AllDay               *bool             `json:"all_day,omitempty" yaml:"all_day,omitempty"`
	Timezone             *string           `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Recurrence           *recurrence.Rule  `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	ClearRecurrence      bool              `json:"clear_recurrence,omitempty" yaml:"clear_recurrence,omitempty"`
	RecurrenceExceptions []recurrence.Date `json:"recurrence_exceptions,omitempty" yaml:"recurrence_exceptions,omitempty"`
}

func (d MutationDTO) ToMutation() (Mutation, error) {
	operation := Operation(strings.ToLower(strings.TrimSpace(d.Operation)))
	if operation != OperationCreate && d.EventID == "" {
		return nil, &ValidationError{Field: "event_id", Reason: "required"}
	}

	switch operation {
	case OperationCreate:
		return CreateMutation{
			EventID:        d.EventID,
			CalendarID:     d.CalendarID,
			Fields:         d.patch().Apply(Fields{}),
			Recurrence:     d.Recurrence,
			ExceptionDates: d.RecurrenceExceptions,
		}, nil
	case OperationUpdate:
		return UpdateMutation{
			EventID:              d.EventID,
			Scope:                Scope(d.RecurrenceScope),
			RecurrenceID:         d.RecurrenceID,
			Patch:                d.patch(),
			RecurrenceExceptions: d.RecurrenceExceptions,
		}, nil
	case OperationDelete:
		return DeleteMutation{
			EventID:      d.EventID,
			Scope:        Scope(d.RecurrenceScope),
			RecurrenceID: d.RecurrenceID,
		}, nil
	}
	return nil, &ValidationError{Field: "operation", EventID: d.EventID, Reason: "must be create, update or delete"}
}

func (d MutationDTO) patch() EventPatch {
	p := EventPatch{
		Title:       mo.PointerToOption(d.Title),
		Description: mo.PointerToOption(d.Description),
		Location:    mo.PointerToOption(d.Location),
		Attendees:   mo.PointerToOption(d.Attendees),
		Start:       mo.PointerToOption(d.Start),
		End:         mo.PointerToOption(d.End),
		AllDay:      mo.PointerToOption(d.AllDay),
		Timezone:    mo.PointerToOption(d.Timezone),
	}
	switch {
	case d.ClearRecurrence:
		p.Recurrence = mo.Some[*recurrence.Rule](nil)
	case d.Recurrence != nil:
		p.Recurrence = mo.Some(d.Recurrence)
	}
	return p
}

type MutationResultDTO struct {
	CreatedEventIDs []string `json:"created_event_ids"`
	UpdatedEventIDs []string `json:"updated_event_ids"`
	DeletedEventIDs []string `json:"deleted_event_ids"`
}

type OccurrenceDTO struct {
	EventID              string           `json:"event_id"`
	CalendarID           string           `json:"calendar_id"`
	OccurrenceDate       recurrence.Date  `json:"occurrence_date"`
	Title                string           `json:"title"`
	Description          string           `json:"description,omitempty"`
	Location             string           `json:"location,omitempty"`
	Attendees            []string         `json:"attendees,omitempty"`
	Start                time.Time        `json:"start"`
	End                  time.Time        `json:"end"`
	AllDay               bool             `json:"all_day"`
	Timezone             string           `json:"timezone"`
	IsRecurring          bool             `json:"is_recurring"`
	IsModified           bool             `json:"is_modified"`
	ModifiedOccurrenceID string           `json:"modified_occurrence_id,omitempty"`
	Recurrence           *recurrence.Rule `json:"recurrence,omitempty"`
}

type ModifiedOccurrenceDTO struct {
	ID           string          `json:"id"`
	RecurrenceID recurrence.Date `json:"recurrence_id"`
	Title        *string         `json:"title,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Location     *string         `json:"location,omitempty"`
	Attendees    *[]string       `json:"attendees,omitempty"`
	Start        *time.Time      `json:"start,omitempty"`
	End          *time.Time      `json:"end,omitempty"`
	AllDay       *bool           `json:"all_day,omitempty"`
	Timezone     *string         `json:"timezone,omitempty"`
}

type EventDTO struct {
	ID                    string                  `json:"id"`
	CalendarID            string                  `json:"calendar_id"`
	Title                 string                  `json:"title"`
	Description           string                  `json:"description,omitempty"`
	Location              string                  `json:"location,omitempty"`
	Attendees             []string                `json:"attendees,omitempty"`
	Start                 time.Time               `json:"start"`
	End                   time.Time               `json:"end"`
	AllDay                bool                    `json:"all_day"`
	Timezone              string                  `json:"timezone"`
	Recurrence            *recurrence.Rule        `json:"recurrence,omitempty"`
	RecurrenceExceptions  []recurrence.Date       `json:"recurrence_exceptions,omitempty"`
	ModifiedOccurrences   []ModifiedOccurrenceDTO `json:"modified_occurrences,omitempty"`
	ModifiedOccurrenceIDs []string                `json:"modified_occurrence_ids"`
	CreatedAt             time.Time               `json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
}

func calendarToDTO(c Calendar) CalendarDTO {
	return CalendarDTO{ID: c.ID, Name: c.Name, Timezone: c.Timezone, Color: c.Color, CreatedAt: c.CreatedAt}
}

func dtoToCalendar(d CalendarDTO) Calendar {
	return Calendar{ID: d.ID, Name: d.Name, Timezone: d.Timezone, Color: d.Color}
}

func resultToDTO(r MutationResult) MutationResultDTO {
	return MutationResultDTO{
		CreatedEventIDs: nonNil(r.CreatedEventIDs),
		UpdatedEventIDs: nonNil(r.UpdatedEventIDs),
		DeletedEventIDs: nonNil(r.DeletedEventIDs),
	}
}

func occurrenceToDTO(o Occurrence) OccurrenceDTO {
	return OccurrenceDTO{
		EventID:              o.EventID,
		CalendarID:           o.CalendarID,
		OccurrenceDate:       o.OccurrenceDate,
		Title:                o.Title,
		Description:          o.Description,
		Location:             o.Location,
		Attendees:            o.Attendees,
		Start:                o.Start,
		End:                  o.End,
		AllDay:               o.AllDay,
		Timezone:             o.Timezone,
		IsRecurring:          o.IsRecurring,
		IsModified:           o.IsModified,
		ModifiedOccurrenceID: o.ModifiedOccurrenceID,
		Recurrence:           o.Recurrence,
	}
}

func eventToDTO(d EventDetails) EventDTO {
	e := d.Event
	dto := EventDTO{
		ID:                    e.ID,
		CalendarID:            e.CalendarID,
		Title:                 e.Title,
		Description:           e.Description,
		Location:              e.Location,
		Attendees:             e.Attendees,
		Start:                 e.Start,
		End:                   e.End,
		AllDay:                e.AllDay,
		Timezone:              e.Timezone,
		Recurrence:            e.Recurrence,
		RecurrenceExceptions:  d.Exceptions,
		ModifiedOccurrenceIDs: nonNil(d.ModifiedOccurrenceIDs),
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
	for _, m := range d.ModifiedOccurrences {
		dto.ModifiedOccurrences = append(dto.ModifiedOccurrences, ModifiedOccurrenceDTO{
			ID:           m.ID,
			RecurrenceID: m.RecurrenceID,
			Title:        m.Patch.Title.ToPointer(),
			Description:  m.Patch.Description.ToPointer(),
			Location:     m.Patch.Location.ToPointer(),
			Attendees:    m.Patch.Attendees.ToPointer(),
			Start:        m.Patch.Start.ToPointer(),
			End:          m.Patch.End.ToPointer(),
			AllDay:       m.Patch.AllDay.ToPointer(),
			Timezone:     m.Patch.Timezone.ToPointer(),
		})
	}
	return dto
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
