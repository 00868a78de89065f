package calendar

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mockassist/mockassist/internal/event_bus"
	"github.com/mockassist/mockassist/internal/utils"
	"github.com/mockassist/mockassist/pkg/recurrence"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)

// Test setup helper
func setupServiceTest(t *testing.T) (*Service, *utils.SimulatedClock, context.Context) {
	t.Helper()
	clock := utils.NewSimulatedClock(testNow)
	service := NewService(NewStore(), clock, event_bus.NewEventBus(), Config{
		DefaultTimezone:   "UTC",
		MaxQueryDays:      3660,
		NearestSearchDays: 3660,
	})
	service.resolver.newID = sequentialIDs("series")
	ctx := context.Background()
	_, err := service.CreateCalendar(ctx, Calendar{ID: "work", Name: "Work"})
	require.NoError(t, err)
	return service, clock, ctx
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func date(s string) recurrence.Date {
	d, err := recurrence.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *recurrence.Date {
	d := date(s)
	return &d
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// standup is the weekly monday, wednesday and friday series from 2024-01-15.
func standup() CreateMutation {
	return CreateMutation{
		EventID:    "standup",
		CalendarID: "work",
		Fields: Fields{
			Title:    "Standup",
			Start:    at("2024-01-15T09:00:00Z"),
			End:      at("2024-01-15T09:30:00Z"),
			Timezone: "UTC",
		},
		Recurrence: &recurrence.Rule{
			Frequency:  recurrence.Weekly,
			Interval:   1,
			DaysOfWeek: []recurrence.Weekday{recurrence.Monday, recurrence.Wednesday, recurrence.Friday},
			EndType:    recurrence.EndNever,
		},
	}
}

func mustApply(t *testing.T, service *Service, ctx context.Context, m Mutation) MutationResult {
	t.Helper()
	result, err := service.ApplyMutation(ctx, m)
	require.NoError(t, err)
	return result
}

// queryDays runs an expanded query over whole UTC days from..to.
func queryDays(t *testing.T, service *Service, ctx context.Context, from, to string) []Occurrence {
	t.Helper()
	occurrences, err := service.QueryRange(ctx, Query{
		Start:           date(from).Midnight(time.UTC),
		End:             date(to).At(23, 59, 59, 0, time.UTC),
		ExpandRecurring: true,
	})
	require.NoError(t, err)
	return occurrences
}

func occurrenceDates(occurrences []Occurrence) []recurrence.Date {
	out := make([]recurrence.Date, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, o.OccurrenceDate)
	}
	return out
}

func dateList(ss ...string) []recurrence.Date {
	out := make([]recurrence.Date, 0, len(ss))
	for _, s := range ss {
		out = append(out, date(s))
	}
	return out
}

func TestService_WeeklySeries(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, standup())

	occurrences := queryDays(t, service, ctx, "2024-01-15", "2024-01-22")

	assert.Equal(t, dateList("2024-01-15", "2024-01-17", "2024-01-19", "2024-01-22"), occurrenceDates(occurrences))
	for _, o := range occurrences {
		assert.Equal(t, "standup", o.EventID)
		assert.True(t, o.IsRecurring)
		assert.False(t, o.IsModified)
		assert.Equal(t, 9, o.Start.Hour())
		assert.Equal(t, 30*time.Minute, o.End.Sub(o.Start))
	}
}

func TestService_ExceptionRemovesOccurrence(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, standup())

	result := mustApply(t, service, ctx, UpdateMutation{
		EventID:              "standup",
		Scope:                ScopeThis,
		RecurrenceExceptions: []recurrence.Date{date("2024-01-17")},
	})
	assert.Equal(t, []string{"standup"}, result.UpdatedEventIDs)

	occurrences := queryDays(t, service, ctx, "2024-01-15", "2024-01-22")
	assert.Equal(t, dateList("2024-01-15", "2024-01-19", "2024-01-22"), occurrenceDates(occurrences))
}

func TestService_UpdateThisMovesSingleOccurrence(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, standup())

	mustApply(t, service, ctx, UpdateMutation{
		EventID:      "standup",
		Scope:        ScopeThis,
		RecurrenceID: datePtr("2024-01-22"),
		Patch:        EventPatch{Start: mo.Some(at("2024-01-22T10:00:00Z"))},
	})

	occurrences := queryDays(t, service, ctx, "2024-01-15", "2024-01-22")
	require.Len(t, occurrences, 4)
	for _, o := range occurrences[:3] {
		assert.Equal(t, 9, o.Start.Hour())
		assert.False(t, o.IsModified)
	}
	moved := occurrences[3]
	assert.Equal(t, date("2024-01-22"), moved.OccurrenceDate)
	assert.True(t, moved.IsModified)
	assert.NotEmpty(t, moved.ModifiedOccurrenceID)
	assert.Equal(t, at("2024-01-22T10:00:00Z"), moved.Start.UTC())
	assert.Equal(t, at("2024-01-22T10:30:00Z"), moved.End.UTC())

	details, err := service.GetEvent(ctx, "standup")
	require.NoError(t, err)
	assert.Equal(t, standup().Recurrence, details.Event.Recurrence, "parent rule must not change")
	assert.Equal(t, at("2024-01-15T09:00:00Z"), details.Event.Start.UTC())
	require.Len(t, details.ModifiedOccurrences, 1)
	assert.Equal(t, date("2024-01-22"), details.ModifiedOccurrences[0].RecurrenceID)
}

func TestService_UpdateThisAndFutureSplitsSeries(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, standup())

	result := mustApply(t, service, ctx, UpdateMutation{
		EventID:      "standup",
		Scope:        ScopeThisAndFuture,
		RecurrenceID: datePtr("2024-01-22"),
		Patch:        EventPatch{Title: mo.Some("Team sync")},
	})
	assert.Equal(t, []string{"standup"}, result.UpdatedEventIDs)
	require.Len(t, result.CreatedEventIDs, 1)
	successorID := result.CreatedEventIDs[0]
	assert.NotEqual(t, "standup", successorID)

	before := queryDays(t, service, ctx, "2024-01-15", "2024-01-21")
	assert.Equal(t, dateList("2024-01-15", "2024-01-17", "2024-01-19"), occurrenceDates(before))
	for _, o := range before {
		assert.Equal(t, "standup", o.EventID)
		assert.Equal(t, "Standup", o.Title)
	}

	after := queryDays(t, service, ctx, "2024-01-22", "2024-01-26")
	assert.Equal(t, dateList("2024-01-22", "2024-01-24", "2024-01-26"), occurrenceDates(after))
	for _, o := range after {
		assert.Equal(t, successorID, o.EventID)
		assert.Equal(t, "Team sync", o.Title)
		assert.Equal(t, 9, o.Start.Hour())
	}
}

func TestService_SplitPartitionsTheSeries(t *testing.T) {
	rules := map[string]recurrence.Rule{
		"never": {Frequency: recurrence.Weekly, DaysOfWeek: []recurrence.Weekday{recurrence.Monday, recurrence.Wednesday, recurrence.Friday}},
		"count": {Frequency: recurrence.Weekly, DaysOfWeek: []recurrence.Weekday{recurrence.Monday, recurrence.Wednesday, recurrence.Friday}, EndType: recurrence.EndCount, Count: 8},
		"until": {Frequency: recurrence.Daily, Interval: 2, EndType: recurrence.EndUntil, Until: datePtr("2024-02-10")},
	}

	for name, rule := range rules {
		t.Run(name, func(t *testing.T) {
			service, _, ctx := setupServiceTest(t)
			create := standup()
			create.Recurrence = &rule
			mustApply(t, service, ctx, create)

			from, to := at("2024-01-01T00:00:00Z"), at("2024-03-01T00:00:00Z")
			original, err := service.Expand(ctx, "standup", from, to)
			require.NoError(t, err)
			require.True(t, len(original) > 3)
			split := original[2].OccurrenceDate

			result := mustApply(t, service, ctx, UpdateMutation{
				EventID:      "standup",
				Scope:        ScopeThisAndFuture,
				RecurrenceID: &split,
				Patch:        EventPatch{Location: mo.Some("Room 2")},
			})
			require.Len(t, result.CreatedEventIDs, 1)

			head, err := service.Expand(ctx, "standup", from, split.Midnight(time.UTC).Add(-time.Nanosecond))
			require.NoError(t, err)
			tail, err := service.Expand(ctx, result.CreatedEventIDs[0], split.Midnight(time.UTC), to)
			require.NoError(t, err)

			// nothing generated past the split by the old series
			rest, err := service.Expand(ctx, "standup", split.Midnight(time.UTC), to)
			require.NoError(t, err)
			assert.Empty(t, rest)

			var got []time.Time
			for _, o := range append(head, tail...) {
				got = append(got, o.Start)
			}
			var want []time.Time
			for _, o := range original {
				want = append(want, o.Start)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestService_CountIsConsumedBeforeExceptions(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	create := standup()
	create.Recurrence = &recurrence.Rule{Frequency: recurrence.Daily, EndType: recurrence.EndCount, Count: 5}
	mustApply(t, service, ctx, create)

	all := queryDays(t, service, ctx, "2024-01-01", "2025-12-31")
	assert.Len(t, all, 5)

	mustApply(t, service, ctx, UpdateMutation{
		EventID:              "standup",
		Scope:                ScopeThis,
		RecurrenceExceptions: []recurrence.Date{date("2024-01-16")},
	})

	visible := queryDays(t, service, ctx, "2024-01-01", "2025-12-31")
	assert.Equal(t, dateList("2024-01-15", "2024-01-17", "2024-01-18", "2024-01-19"), occurrenceDates(visible))

	candidates, err := recurrence.Generate(*create.Recurrence, date("2024-01-15"), date("2024-01-01"), date("2025-12-31"))
	require.NoError(t, err)
	n := 0
	for range candidates {
		n++
	}
	assert.Equal(t, 5, n)
}

func TestService_MonthlyClipping(t *testing.T) {
	testCases := []struct {
		anchor string
		want   string
	}{
		{anchor: "2023-01-31T09:00:00Z", want: "2023-02-28"},
		{anchor: "2024-01-31T09:00:00Z", want: "2024-02-29"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			service, _, ctx := setupServiceTest(t)
			create := standup()
			create.Fields.Start = at(tc.anchor)
			create.Fields.End = at(tc.anchor).Add(time.Hour)
			create.Recurrence = &recurrence.Rule{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: 31}
			mustApply(t, service, ctx, create)

			feb := date(tc.want)
			occurrences := queryDays(t, service, ctx, recurrence.NewDate(feb.Year, time.February, 1).String(), tc.want)
			assert.Equal(t, []recurrence.Date{feb}, occurrenceDates(occurrences))
		})
	}
}

func TestService_QueryWithoutExpansion(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, standup())
	mustApply(t, service, ctx, CreateMutation{
		EventID:    "lunch",
		CalendarID: "work",
		Fields:     Fields{Title: "Lunch", Start: at("2024-01-16T12:00:00Z"), End: at("2024-01-16T13:00:00Z")},
	})

	occurrences, err := service.QueryRange(ctx, Query{
		Start: at("2024-01-15T00:00:00Z"),
		End:   at("2024-01-31T00:00:00Z"),
	})
	require.NoError(t, err)

	require.Len(t, occurrences, 2)
	assert.Equal(t, "standup", occurrences[0].EventID)
	assert.NotNil(t, occurrences[0].Recurrence)
	assert.Equal(t, "lunch", occurrences[1].EventID)
	assert.False(t, occurrences[1].IsRecurring)
}

func TestService_QueryOrdersByStartThenEventID(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	for _, id := range []string{"b", "a", "c"} {
		start := at("2024-01-16T12:00:00Z")
		if id == "c" {
			start = at("2024-01-16T08:00:00Z")
		}
		mustApply(t, service, ctx, CreateMutation{
			EventID:    id,
			CalendarID: "work",
			Fields:     Fields{Title: id, Start: start, End: start.Add(time.Hour)},
		})
	}

	occurrences := queryDays(t, service, ctx, "2024-01-16", "2024-01-16")
	var ids []string
	for _, o := range occurrences {
		ids = append(ids, o.EventID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestService_QueryValidation(t *testing.T) {
	service, _, ctx := setupServiceTest(t)

	_, err := service.QueryRange(ctx, Query{Start: at("2024-02-01T00:00:00Z"), End: at("2024-01-01T00:00:00Z")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.QueryRange(ctx, Query{Start: at("2024-01-01T00:00:00Z"), End: at("2044-01-01T00:00:00Z")})
	assert.ErrorIs(t, err, ErrValidation, "window longer than the configured maximum")

	_, err = service.QueryRange(ctx, Query{CalendarIDs: []string{"personal"}, Start: at("2024-01-01T00:00:00Z"), End: at("2024-01-02T00:00:00Z")})
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "calendar", notFound.Kind)
}

func TestService_ExpandIsIdempotent(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	mustApply(t, service, ctx, standup())
	mustApply(t, service, ctx, UpdateMutation{
		EventID:      "standup",
		Scope:        ScopeThis,
		RecurrenceID: datePtr("2024-01-19"),
		Patch:        EventPatch{Title: mo.Some("Demo")},
	})

	from, to := at("2024-01-01T00:00:00Z"), at("2024-06-30T00:00:00Z")
	first, err := service.Expand(ctx, "standup", from, to)
	require.NoError(t, err)
	second, err := service.Expand(ctx, "standup", from, to)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestService_PublishesChanges(t *testing.T) {
	service, clock, ctx := setupServiceTest(t)

	var received []event_bus.EventT[event_bus.CalendarEventChanged]
	record := func(e event_bus.EventT[event_bus.CalendarEventChanged]) error {
		received = append(received, e)
		return nil
	}
	event_bus.SubscribeTyped(service.eventBus, event_bus.CalendarEventCreated, record)
	event_bus.SubscribeTyped(service.eventBus, event_bus.CalendarEventUpdated, record)
	event_bus.SubscribeTyped(service.eventBus, event_bus.CalendarEventDeleted, record)

	mustApply(t, service, ctx, standup())
	clock.Set(testNow.Add(time.Hour))
	mustApply(t, service, ctx, UpdateMutation{
		EventID:      "standup",
		Scope:        ScopeThisAndFuture,
		RecurrenceID: datePtr("2024-01-22"),
		Patch:        EventPatch{Title: mo.Some("Team sync")},
	})
	mustApply(t, service, ctx, DeleteMutation{EventID: "standup"})

	require.Len(t, received, 4)
	assert.Equal(t, event_bus.CalendarEventCreated, received[0].Type)
	assert.Equal(t, "standup", received[0].Data.EventID)
	assert.Equal(t, "work", received[0].Data.CalendarID)
	assert.Equal(t, testNow, received[0].Data.At)
	assert.Equal(t, event_bus.CalendarEventCreated, received[1].Type)
	assert.Equal(t, "series-1", received[1].Data.EventID)
	assert.Equal(t, testNow.Add(time.Hour), received[1].Data.At)
	assert.Equal(t, event_bus.CalendarEventUpdated, received[2].Type)
	assert.Equal(t, event_bus.CalendarEventDeleted, received[3].Type)
}

func TestService_RejectedMutationPublishesNothing(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	published := 0
	event_bus.SubscribeTyped(service.eventBus, event_bus.CalendarEventCreated, func(e event_bus.EventT[event_bus.CalendarEventChanged]) error {
		published++
		return nil
	})

	create := standup()
	create.CalendarID = "missing"
	_, err := service.ApplyMutation(ctx, create)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, published)
}

func TestService_CreateCalendar(t *testing.T) {
	service, _, ctx := setupServiceTest(t)

	created, err := service.CreateCalendar(ctx, Calendar{Name: "Personal", Timezone: "Europe/Warsaw"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testNow, created.CreatedAt)

	_, err = service.CreateCalendar(ctx, Calendar{ID: "work"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.CreateCalendar(ctx, Calendar{Name: "Mars", Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, ErrValidation)

	calendars, err := service.GetCalendars(ctx)
	require.NoError(t, err)
	assert.Len(t, calendars, 2)
}

func TestService_EventInheritsCalendarTimezone(t *testing.T) {
	service, _, ctx := setupServiceTest(t)
	_, err := service.CreateCalendar(ctx, Calendar{ID: "home", Timezone: "Europe/Warsaw"})
	require.NoError(t, err)

	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	start := time.Date(2024, 3, 25, 9, 0, 0, 0, warsaw)
	mustApply(t, service, ctx, CreateMutation{
		EventID:    "gym",
		CalendarID: "home",
		Fields:     Fields{Title: "Gym", Start: start, End: start.Add(time.Hour)},
		Recurrence: &recurrence.Rule{Frequency: recurrence.Weekly},
	})

	details, err := service.GetEvent(ctx, "gym")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Warsaw", details.Event.Timezone)

	// the wall clock time survives the switch to summer time on 2024-03-31
	occurrences, err := service.Expand(ctx, "gym", at("2024-03-25T00:00:00Z"), at("2024-04-02T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, occurrences, 2)
	assert.Equal(t, at("2024-03-25T08:00:00Z"), occurrences[0].Start.UTC())
	assert.Equal(t, at("2024-04-01T07:00:00Z"), occurrences[1].Start.UTC())
	assert.Equal(t, 9, occurrences[1].Start.In(warsaw).Hour())
}
