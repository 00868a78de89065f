package calendar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mockassist/mockassist/pkg/recurrence"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type occurrenceView struct {
	Date   recurrence.Date
	Title  string
	Start  time.Time
	End    time.Time
	AllDay bool
}

func views(occurrences []Occurrence) []occurrenceView {
	out := make([]occurrenceView, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, occurrenceView{Date: o.OccurrenceDate, Title: o.Title, Start: o.Start.UTC(), End: o.End.UTC(), AllDay: o.AllDay})
	}
	return out
}

func TestService_ICSRoundTrip(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	create := standup()
	create.Fields.Attendees = []string{"ann@example.com"}
	mustApply(t, service, ctx, create)
	mustApply(t, service, ctx, UpdateMutation{EventID: "standup", Scope: ScopeThis, RecurrenceExceptions: []recurrence.Date{date("2024-01-17")}})
	mustApply(t, service, ctx, UpdateMutation{
		EventID:      "standup",
		Scope:        ScopeThis,
		RecurrenceID: datePtr("2024-01-22"),
		Patch:        EventPatch{Title: mo.Some("Moved"), Start: mo.Some(at("2024-01-22T10:00:00Z"))},
	})
	mustApply(t, service, ctx, CreateMutation{
		EventID:    "offsite",
		CalendarID: "work",
		Fields:     Fields{Title: "Offsite", Start: at("2024-01-16T00:00:00Z"), End: at("2024-01-18T00:00:00Z"), AllDay: true},
	})
	mustApply(t, service, ctx, CreateMutation{
		EventID:    "cancelled",
		CalendarID: "work",
		Fields:     Fields{Title: "Cancelled", Start: at("2024-01-16T12:00:00Z"), End: at("2024-01-16T13:00:00Z")},
	})
	mustApply(t, service, ctx, DeleteMutation{EventID: "cancelled"})

	var buf bytes.Buffer
	require.NoError(t, service.ExportICS(ctx, "work", &buf))
	exported := buf.String()
	assert.Contains(t, exported, "RRULE:FREQ=WEEKLY")
	assert.Contains(t, exported, "EXDATE")
	assert.Contains(t, exported, "RECURRENCE-ID")
	assert.Contains(t, exported, "mailto:ann@example.com")
	assert.NotContains(t, exported, "UID:cancelled")

	imported, _, ctx := setupServiceTest(t)
	result, err := imported.ImportICS(ctx, "work", strings.NewReader(exported))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"standup", "offsite"}, result.CreatedEventIDs)

	want := queryDays(t, service, ctx, "2024-01-01", "2024-02-29")
	got := queryDays(t, imported, ctx, "2024-01-01", "2024-02-29")
	assert.Equal(t, views(want), views(got))

	details, err := imported.GetEvent(ctx, "standup")
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@example.com"}, details.Event.Attendees)
}

func TestService_ExportICSStartsAtFirstOccurrence(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, CreateMutation{
		EventID:    "review",
		CalendarID: "work",
		Fields:     Fields{Title: "Review", Start: at("2024-01-15T09:00:00Z"), End: at("2024-01-15T09:30:00Z")},
		Recurrence: &recurrence.Rule{
			Frequency:  recurrence.Weekly,
			DaysOfWeek: []recurrence.Weekday{recurrence.Wednesday, recurrence.Friday},
			EndType:    recurrence.EndCount,
			Count:      3,
		},
	})

	var buf bytes.Buffer
	require.NoError(t, service.ExportICS(ctx, "work", &buf))
	exported := buf.String()
	// monday the 15th is not a generated date
	assert.Contains(t, exported, "DTSTART:20240117T090000Z")
	assert.Contains(t, exported, "DTEND:20240117T093000Z")
	assert.NotContains(t, exported, "20240115T090000Z")

	imported, _, ctx := setupServiceTest(t)
	_, err := imported.ImportICS(ctx, "work", strings.NewReader(exported))
	require.NoError(t, err)
	want := dateList("2024-01-17", "2024-01-19", "2024-01-24")
	assert.Equal(t, want, occurrenceDates(queryDays(t, service, ctx, "2024-01-01", "2024-03-31")))
	assert.Equal(t, want, occurrenceDates(queryDays(t, imported, ctx, "2024-01-01", "2024-03-31")))
}

func icsLines(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func TestService_ImportICS(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	data := icsLines(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:yoga",
		"DTSTAMP:20240101T000000Z",
		"DTSTART;TZID=Europe/Warsaw:20240101T180000",
		"DURATION:PT1H",
		"SUMMARY:Yoga",
		"RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=6",
		"EXDATE;TZID=Europe/Warsaw:20240103T180000,20240108T180000",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	result, err := service.ImportICS(ctx, "work", strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"yoga"}, result.CreatedEventIDs)

	occurrences := queryDays(t, service, ctx, "2024-01-01", "2024-01-31")
	assert.Equal(t, dateList("2024-01-01", "2024-01-10", "2024-01-15", "2024-01-17"), occurrenceDates(occurrences))
	for _, o := range occurrences {
		assert.Equal(t, "Yoga", o.Title)
		assert.Equal(t, "Europe/Warsaw", o.Timezone)
		assert.Equal(t, 17, o.Start.UTC().Hour())
		assert.Equal(t, time.Hour, o.End.Sub(o.Start))
	}
}

func TestService_ImportICSIsAtomic(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	data := icsLines(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:yoga",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240101T170000Z",
		"DTEND:20240101T180000Z",
		"SUMMARY:Yoga",
		"RRULE:FREQ=WEEKLY;BYDAY=MO",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:yoga",
		"DTSTAMP:20240101T000000Z",
		"RECURRENCE-ID:20240102T170000Z",
		"DTSTART:20240102T190000Z",
		"DTEND:20240102T200000Z",
		"SUMMARY:Yoga moved",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	_, err := service.ImportICS(ctx, "work", strings.NewReader(data))

	assert.ErrorIs(t, err, ErrValidation)
	_, err = service.GetEvent(ctx, "yoga")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ImportICSRejectsUnsupportedRules(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	data := icsLines(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:board",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240101T170000Z",
		"SUMMARY:Board meeting",
		"RRULE:FREQ=MONTHLY;BYDAY=1MO",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	_, err := service.ImportICS(ctx, "work", strings.NewReader(data))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.ImportICS(ctx, "missing", strings.NewReader(data))
	assert.ErrorIs(t, err, ErrNotFound)
}
