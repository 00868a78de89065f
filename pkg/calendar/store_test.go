package calendar

import (
	"errors"
	"testing"

	"github.com/mockassist/mockassist/pkg/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WithTransactionRollsBack(t *testing.T) {
	store := NewStore()
	store.PutCalendar(Calendar{ID: "work"})
	event := seriesEvent("standup", at("2024-01-15T09:00:00Z"), at("2024-01-15T09:30:00Z"), recurrence.Rule{Frequency: recurrence.Daily})
	store.PutEvent(event)

	failure := errors.New("boom")
	err := store.WithTransaction(func(tx *Store) error {
		e, _ := tx.Event("standup")
		e.Title = "changed"
		e.addException(date("2024-01-16"))
		tx.PutEvent(e)
		tx.PutModifiedOccurrence(ModifiedOccurrence{ID: "m", ParentEventID: "standup", RecurrenceID: date("2024-01-17")})
		tx.PutCalendar(Calendar{ID: "home"})
		return failure
	})

	assert.ErrorIs(t, err, failure)
	got, ok := store.Event("standup")
	require.True(t, ok)
	assert.Equal(t, "standup", got.Title)
	assert.Empty(t, got.ExceptionDates)
	assert.Empty(t, store.ModifiedOccurrences("standup"))
	assert.Len(t, store.Calendars(), 1)
}

func TestStore_WithTransactionCommits(t *testing.T) {
	store := NewStore()

	err := store.WithTransaction(func(tx *Store) error {
		tx.PutCalendar(Calendar{ID: "work"})
		return nil
	})

	require.NoError(t, err)
	_, err = store.Calendar("work")
	assert.NoError(t, err)
}

func TestStore_EventsAreCopied(t *testing.T) {
	store := NewStore()
	event := seriesEvent("standup", at("2024-01-15T09:00:00Z"), at("2024-01-15T09:30:00Z"), recurrence.Rule{Frequency: recurrence.Daily})
	store.PutEvent(event)

	event.Recurrence.Interval = 5
	got, _ := store.Event("standup")
	got.addException(date("2024-01-16"))

	again, _ := store.Event("standup")
	assert.Equal(t, 0, again.Recurrence.Interval)
	assert.Empty(t, again.ExceptionDates)
}

func TestStore_ModifiedOccurrences(t *testing.T) {
	store := NewStore()
	for _, d := range []string{"2024-01-22", "2024-01-15", "2024-01-17"} {
		store.PutModifiedOccurrence(ModifiedOccurrence{ID: "m-" + d, ParentEventID: "standup", RecurrenceID: date(d)})
	}

	assert.Equal(t, []string{"m-2024-01-15", "m-2024-01-17", "m-2024-01-22"}, store.ModifiedOccurrenceIDs("standup"))

	assert.True(t, store.ReassignModifiedOccurrence("standup", date("2024-01-22"), "successor"))
	assert.False(t, store.ReassignModifiedOccurrence("standup", date("2024-01-22"), "successor"))
	moved, ok := store.ModifiedOccurrence("successor", date("2024-01-22"))
	require.True(t, ok)
	assert.Equal(t, "m-2024-01-22", moved.ID)
	assert.Equal(t, "successor", moved.ParentEventID)

	assert.True(t, store.DeleteModifiedOccurrence("standup", date("2024-01-15")))
	assert.False(t, store.DeleteModifiedOccurrence("standup", date("2024-01-15")))
	assert.Equal(t, []string{"m-2024-01-17"}, store.ModifiedOccurrenceIDs("standup"))
}
