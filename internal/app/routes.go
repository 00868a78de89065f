package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Calendars
	r.HandleFunc("/api/calendar", deps.CalendarHandler.CreateCalendar).Methods("POST")
	r.HandleFunc("/api/calendar", deps.CalendarHandler.GetCalendars).Methods("GET")

	// Mutations and queries
	r.HandleFunc("/api/calendar/mutation", deps.CalendarHandler.ApplyMutation).Methods("POST")
	r.HandleFunc("/api/calendar/occurrence", deps.CalendarHandler.GetOccurrences).Queries("from", "{from}", "to", "{to}").Methods("GET")
	r.HandleFunc("/api/calendar/event/{eventId}", deps.CalendarHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/calendar/event/{eventId}/occurrence", deps.CalendarHandler.GetEventOccurrences).Queries("from", "{from}", "to", "{to}").Methods("GET")

	// iCalendar
	r.HandleFunc("/api/calendar/{calendarId}/ics", deps.CalendarHandler.ExportICS).Methods("GET")
	r.HandleFunc("/api/calendar/{calendarId}/ics", deps.CalendarHandler.ImportICS).Methods("POST")
}
