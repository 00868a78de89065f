package app

import (
	"github.com/mockassist/mockassist/internal/config"
	"github.com/mockassist/mockassist/internal/event_bus"
	"github.com/mockassist/mockassist/internal/utils"
	"github.com/mockassist/mockassist/pkg/calendar"
	"github.com/mockassist/mockassist/pkg/scenario"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    *utils.SimulatedClock
	EventBus *event_bus.EventBus

	CalendarStore   *calendar.Store
	CalendarService *calendar.Service
	CalendarHandler *calendar.Handler

	ScenarioPlayer *scenario.Player
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(cfg config.Application, clock *utils.SimulatedClock) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = clock
	deps.EventBus = event_bus.NewEventBus()
	subscribeChangeLog(deps.EventBus)

	deps.CalendarStore = calendar.NewStore()
	deps.CalendarService = calendar.NewService(deps.CalendarStore, deps.Clock, deps.EventBus, calendar.Config{
		DefaultTimezone:   cfg.Calendar.DefaultTimezone,
		MaxQueryDays:      cfg.Calendar.MaxQueryDays,
		NearestSearchDays: cfg.Calendar.NearestSearchDays,
	})
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService)

	deps.ScenarioPlayer = scenario.NewPlayer(deps.CalendarService, deps.Clock)

	return deps
}

func subscribeChangeLog(bus *event_bus.EventBus) {
	for _, eventType := range []event_bus.EventType{
		event_bus.CalendarEventCreated,
		event_bus.CalendarEventUpdated,
		event_bus.CalendarEventDeleted,
	} {
		event_bus.SubscribeTyped(bus, eventType, func(e event_bus.EventT[event_bus.CalendarEventChanged]) error {
			log.WithFields(log.Fields{
				"event_id":    e.Data.EventID,
				"calendar_id": e.Data.CalendarID,
				"at":          e.Timestamp,
			}).Debug(e.Type)
			return nil
		})
	}
}
