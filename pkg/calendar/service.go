package calendar

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mockassist/mockassist/internal/event_bus"
	"github.com/mockassist/mockassist/internal/utils"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DefaultTimezone   string
	MaxQueryDays      int
	NearestSearchDays int
}

// Service is the single entry point to the calendar state. It serializes
// every read and mutation.
type Service struct {
	mu              sync.Mutex
	store           *Store
	resolver        *Resolver
	clock           utils.Clock
	eventBus        *event_bus.EventBus
	defaultTimezone string
	maxQueryDays    int
}

func NewService(store *Store, clock utils.Clock, eventBus *event_bus.EventBus, cfg Config) *Service {
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return &Service{
		store: store,
		resolver: NewResolver(clock, ResolverConfig{
			DefaultTimezone:   cfg.DefaultTimezone,
			NearestSearchDays: cfg.NearestSearchDays,
		}),
		clock:           clock,
		eventBus:        eventBus,
		defaultTimezone: cfg.DefaultTimezone,
		maxQueryDays:    cfg.MaxQueryDays,
	}
}

func (s *Service) CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if calendar.ID == "" {
		calendar.ID = uuid.NewString()
	} else if _, err := s.store.Calendar(calendar.ID); err == nil {
		return Calendar{}, &ValidationError{Field: "id", Reason: fmt.Sprintf("calendar %s already exists", calendar.ID)}
	}
	if calendar.Timezone == "" {
		calendar.Timezone = s.defaultTimezone
	}
	if _, err := time.LoadLocation(calendar.Timezone); err != nil {
		return Calendar{}, &ValidationError{Field: "timezone", Reason: err.Error()}
	}
	calendar.CreatedAt = s.clock.Now()
	s.store.PutCalendar(calendar)
	log.Debugf("Created calendar %s", calendar.ID)
	return calendar, nil
}

func (s *Service) GetCalendars(ctx context.Context) ([]Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Calendars(), nil
}

func (s *Service) ApplyMutation(ctx context.Context, mutation Mutation) (MutationResult, error) {
	s.mu.Lock()
	result, err := s.resolver.Apply(s.store, mutation)
	var changes []change
	if err == nil {
		changes = s.changes(result)
	}
	s.mu.Unlock()

	if err != nil {
		return MutationResult{}, err
	}
	s.publish(ctx, changes)
	return result, nil
}

func (s *Service) QueryRange(ctx context.Context, query Query) ([]Occurrence, error) {
	if err := s.checkWindow("", query.Start, query.End); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueryRange(s.store, query)
}

func (s *Service) Expand(ctx context.Context, eventID string, from, to time.Time) ([]Occurrence, error) {
	if err := s.checkWindow(eventID, from, to); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.store.ActiveEvent(eventID)
	if err != nil {
		return nil, err
	}
	return Expand(s.store, event, from, to)
}

func (s *Service) GetEvent(ctx context.Context, eventID string) (EventDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.store.ActiveEvent(eventID)
	if err != nil {
		return EventDetails{}, err
	}
	return EventDetails{
		Event:                 event,
		ModifiedOccurrences:   s.store.ModifiedOccurrences(eventID),
		ModifiedOccurrenceIDs: s.store.ModifiedOccurrenceIDs(eventID),
		Exceptions:            event.Exceptions(),
	}, nil
}

func (s *Service) ExportICS(ctx context.Context, calendarID string, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	calendar, err := s.store.Calendar(calendarID)
	if err != nil {
		return err
	}
	return EncodeICS(s.store, calendar, s.clock.Now(), w)
}

// ImportICS applies every event of an iCalendar stream to calendarID in one
// transaction.
func (s *Service) ImportICS(ctx context.Context, calendarID string, r io.Reader) (MutationResult, error) {
	s.mu.Lock()
	calendar, err := s.store.Calendar(calendarID)
	if err != nil {
		s.mu.Unlock()
		return MutationResult{}, err
	}
	timezone := calendar.Timezone
	if timezone == "" {
		timezone = s.defaultTimezone
	}

	var result MutationResult
	var changes []change
	err = func() error {
		mutations, err := DecodeICS(calendarID, timezone, r)
		if err != nil {
			return err
		}
		return s.store.WithTransaction(func(tx *Store) error {
			for _, m := range mutations {
				applied, err := s.resolver.Apply(tx, m)
				if err != nil {
					return err
				}
				result.merge(applied)
			}
			return nil
		})
	}()
	if err == nil {
		changes = s.changes(result)
	}
	s.mu.Unlock()

	if err != nil {
		return MutationResult{}, err
	}
	log.Infof("Imported %d events into calendar %s", len(result.CreatedEventIDs), calendarID)
	s.publish(ctx, changes)
	return result, nil
}

func (s *Service) checkWindow(eventID string, from, to time.Time) error {
	if to.Before(from) {
		return &ValidationError{Field: "window", EventID: eventID, Reason: "end is before start"}
	}
	if s.maxQueryDays > 0 && to.Sub(from) > time.Duration(s.maxQueryDays)*24*time.Hour {
		return &ValidationError{Field: "window", EventID: eventID, Reason: fmt.Sprintf("window exceeds %d days", s.maxQueryDays)}
	}
	return nil
}

type change struct {
	eventType event_bus.EventType
	payload   event_bus.CalendarEventChanged
}

func (s *Service) changes(result MutationResult) []change {
	now := s.clock.Now()
	var out []change
	add := func(eventType event_bus.EventType, ids []string) {
		for _, id := range ids {
			event, _ := s.store.Event(id)
			out = append(out, change{
				eventType: eventType,
				payload:   event_bus.CalendarEventChanged{EventID: id, CalendarID: event.CalendarID, At: now},
			})
		}
	}
	add(event_bus.CalendarEventCreated, result.CreatedEventIDs)
	add(event_bus.CalendarEventUpdated, result.UpdatedEventIDs)
	add(event_bus.CalendarEventDeleted, result.DeletedEventIDs)
	return out
}

func (s *Service) publish(ctx context.Context, changes []change) {
	if s.eventBus == nil {
		return
	}
	for _, c := range changes {
		if err := s.eventBus.Publish(event_bus.NewEvent(ctx, c.eventType, c.payload.At, c.payload)); err != nil {
			log.Errorf("Failed to publish %s for event %s: %v", c.eventType, c.payload.EventID, err)
		}
	}
}
var _ Modality = (*Service)(nil)
