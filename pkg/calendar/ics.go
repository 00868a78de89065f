package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/mockassist/mockassist/pkg/recurrence"
	"github.com/samber/mo"
)

const icsProductID = "-//mockassist//calendar//EN"

const propRecurrenceID = "RECURRENCE-ID"

// EncodeICS writes the active events of a calendar as one VCALENDAR. A
// series is written as its master VEVENT with RRULE and EXDATE, followed by
// one VEVENT with RECURRENCE-ID per override.
func EncodeICS(store *Store, calendar Calendar, now time.Time, w io.Writer) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icsProductID)
	if calendar.Name != "" {
		cal.Props.SetText(ical.PropName, calendar.Name)
	}

	for _, event := range store.Events(calendar.ID) {
		if event.IsDeleted() {
			continue
		}
		components, err := eventComponents(store, event, now)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
		}
		cal.Children = append(cal.Children, components...)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func eventComponents(store *Store, event Event, now time.Time) ([]*ical.Component, error) {
	loc, err := event.location()
	if err != nil {
		return nil, err
	}

	master := ical.NewEvent()
	master.Props.SetText(ical.PropUID, event.ID)
	master.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if !event.IsRecurring() {
		setFields(master.Props, event.Fields, loc)
		return []*ical.Component{master.Component}, nil
	}

	// DTSTART always counts as an occurrence in RFC 5545, so the series is
	// written from its first generated date.
	fields := event.Fields
	first, ok, err := event.Recurrence.First(event.AnchorDate(loc))
	if err != nil {
		return nil, err
	}
	if ok {
		fields = project(event, first, loc)
	}
	setFields(master.Props, fields, loc)

	value, err := event.Recurrence.ForAnchor(event.AnchorDate(loc)).RRuleString(fields.Start.In(loc))
	if err != nil {
		return nil, err
	}
	rrule := ical.NewProp(ical.PropRecurrenceRule)
	rrule.Value = value
	master.Props.Set(rrule)
	for _, date := range event.Exceptions() {
		exdate := ical.NewProp(ical.PropExceptionDates)
		setInstant(exdate, project(event, date, loc).Start, event.AllDay)
		master.Props.Add(exdate)
	}

	components := []*ical.Component{master.Component}
	overlay := newOverlay(store, event, loc)
	for _, m := range store.ModifiedOccurrences(event.ID) {
		if event.IsException(m.RecurrenceID) {
			continue
		}
		occ := overlay.Resolve(m.RecurrenceID)
		child := ical.NewEvent()
		child.Props.SetText(ical.PropUID, event.ID)
		child.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		rid := ical.NewProp(propRecurrenceID)
		setInstant(rid, project(event, m.RecurrenceID, loc).Start, event.AllDay)
		child.Props.Set(rid)
		occLoc := loc
		if l, err := occ.location(); err == nil {
			occLoc = l
		}
		setFields(child.Props, occ.Fields, occLoc)
		components = append(components, child.Component)
	}
	return components, nil
}

func setFields(props ical.Props, f Fields, loc *time.Location) {
	props.SetText(ical.PropSummary, f.Title)
	if f.Description != "" {
		props.SetText(ical.PropDescription, f.Description)
	}
	if f.Location != "" {
		props.SetText(ical.PropLocation, f.Location)
	}
	for _, attendee := range f.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + attendee
		props.Add(prop)
	}
	if f.AllDay {
		props.SetDate(ical.PropDateTimeStart, f.Start.In(loc))
		props.SetDate(ical.PropDateTimeEnd, f.End.In(loc))
		return
	}
	props.SetDateTime(ical.PropDateTimeStart, f.Start.In(loc))
	props.SetDateTime(ical.PropDateTimeEnd, f.End.In(loc))
}

func setInstant(prop *ical.Prop, t time.Time, allDay bool) {
	if allDay {
		prop.SetDate(t)
		return
	}
	prop.SetDateTime(t)
}

// DecodeICS turns an iCalendar stream into mutations for calendarID: one
// create per master VEVENT, then one single-occurrence update per VEVENT
// carrying a RECURRENCE-ID.
func DecodeICS(calendarID, defaultTimezone string, r io.Reader) ([]Mutation, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, &ValidationError{Field: "ics", Reason: err.Error()}
	}

	var creates, overrides []Mutation
	for _, ev := range cal.Events() {
		uid, err := ev.Props.Text(ical.PropUID)
		if err != nil || uid == "" {
			return nil, &ValidationError{Field: "ics.UID", Reason: "required"}
		}
		fields, loc, err := decodeFields(uid, ev.Component, defaultTimezone)
		if err != nil {
			return nil, err
		}

		if rid := ev.Props.Get(propRecurrenceID); rid != nil {
			t, err := rid.DateTime(loc)
			if err != nil {
				return nil, &ValidationError{Field: "ics.RECURRENCE-ID", EventID: uid, Reason: err.Error()}
			}
			date := recurrence.DateOf(t.In(loc))
			overrides = append(overrides, UpdateMutation{
				EventID:      uid,
				Scope:        ScopeThis,
				RecurrenceID: &date,
				Patch:        patchOf(fields),
			})
			continue
		}

		create := CreateMutation{EventID: uid, CalendarID: calendarID, Fields: fields}
		if prop := ev.Props.Get(ical.PropRecurrenceRule); prop != nil {
			rule, err := recurrence.FromRRule(prop.Value)
			if err != nil {
				return nil, ruleError(uid, err)
			}
			create.Recurrence = &rule
		}
		for _, prop := range ev.Props.Values(ical.PropExceptionDates) {
			for _, value := range strings.Split(prop.Value, ",") {
				single := ical.NewProp(ical.PropExceptionDates)
				single.Params = prop.Params
				single.Value = strings.TrimSpace(value)
				t, err := single.DateTime(loc)
				if err != nil {
					return nil, &ValidationError{Field: "ics.EXDATE", EventID: uid, Reason: err.Error()}
				}
				create.ExceptionDates = append(create.ExceptionDates, recurrence.DateOf(t.In(loc)))
			}
		}
		creates = append(creates, create)
	}
	return append(creates, overrides...), nil
}

func decodeFields(uid string, comp *ical.Component, defaultTimezone string) (Fields, *time.Location, error) {
	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return Fields{}, nil, &ValidationError{Field: "ics.DTSTART", EventID: uid, Reason: "required"}
	}

	tz := start.Params.Get(ical.ParamTimezoneID)
	if tz == "" {
		tz = defaultTimezone
		if strings.HasSuffix(start.Value, "Z") {
			tz = "UTC"
		}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Fields{}, nil, &ValidationError{Field: "ics.TZID", EventID: uid, Reason: err.Error()}
	}

	f := Fields{Timezone: tz}
	f.AllDay = start.Params.Get(ical.ParamValue) == "DATE" || len(start.Value) == len("20060102")
	if f.Start, err = start.DateTime(loc); err != nil {
		return Fields{}, nil, &ValidationError{Field: "ics.DTSTART", EventID: uid, Reason: err.Error()}
	}

	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		if f.End, err = comp.Props.Get(ical.PropDateTimeEnd).DateTime(loc); err != nil {
			return Fields{}, nil, &ValidationError{Field: "ics.DTEND", EventID: uid, Reason: err.Error()}
		}
	case comp.Props.Get(ical.PropDuration) != nil:
		duration, err := comp.Props.Get(ical.PropDuration).Duration()
		if err != nil {
			return Fields{}, nil, &ValidationError{Field: "ics.DURATION", EventID: uid, Reason: err.Error()}
		}
		f.End = f.Start.Add(duration)
	case f.AllDay:
		f.End = f.Start.AddDate(0, 0, 1)
	default:
		f.End = f.Start
	}

	f.Title, _ = comp.Props.Text(ical.PropSummary)
	f.Description, _ = comp.Props.Text(ical.PropDescription)
	f.Location, _ = comp.Props.Text(ical.PropLocation)
	for _, prop := range comp.Props.Values(ical.PropAttendee) {
		f.Attendees = append(f.Attendees, strings.TrimPrefix(prop.Value, "mailto:"))
	}
	return f, loc, nil
}

func patchOf(f Fields) EventPatch {
	return EventPatch{
		Title:       mo.Some(f.Title),
		Description: mo.Some(f.Description),
		Location:    mo.Some(f.Location),
		Attendees:   mo.Some(f.Attendees),
		Start:       mo.Some(f.Start),
		End:         mo.Some(f.End),
		AllDay:      mo.Some(f.AllDay),
		Timezone:    mo.Some(f.Timezone),
	}
}
