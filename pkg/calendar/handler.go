package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mockassist/mockassist/internal/rest"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	calendar Modality
}

func NewHandler(calendar Modality) *Handler {
	return &Handler{calendar}
}

func (h *Handler) CreateCalendar(w http.ResponseWriter, r *http.Request) {
	var calendarDTO CalendarDTO
	if err := json.NewDecoder(r.Body).Decode(&calendarDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	created, err := h.calendar.CreateCalendar(r.Context(), dtoToCalendar(calendarDTO))
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, calendarToDTO(created))
}

func (h *Handler) GetCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.calendar.GetCalendars(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]CalendarDTO, 0, len(calendars))
	for _, c := range calendars {
		dtos = append(dtos, calendarToDTO(c))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApplyMutation(w http.ResponseWriter, r *http.Request) {
	var mutationDTO MutationDTO
	if err := json.NewDecoder(r.Body).Decode(&mutationDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	mutation, err := mutationDTO.ToMutation()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.calendar.ApplyMutation(r.Context(), mutation)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, resultToDTO(result))
}

func (h *Handler) GetOccurrences(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	query := Query{Start: from, End: to, ExpandRecurring: true}

	params := r.URL.Query()
	if ids := params.Get("calendar_ids"); ids != "" {
		query.CalendarIDs = strings.Split(ids, ",")
	}
	if expand := params.Get("expand"); expand != "" {
		value, err := strconv.ParseBool(expand)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid expand value", "'expand' must be true or false")
			return
		}
		query.ExpandRecurring = value
	}
	if asOf := params.Get("as_of"); asOf != "" {
		t, err := time.Parse(time.RFC3339, asOf)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid as_of format", "'as_of' must be in RFC3339 format")
			return
		}
		query.AsOf = &t
	}

	occurrences, err := h.calendar.QueryRange(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOccurrences(w, occurrences)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	details, err := h.calendar.GetEvent(r.Context(), mux.Vars(r)["eventId"])
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(details))
}

func (h *Handler) GetEventOccurrences(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}
	occurrences, err := h.calendar.Expand(r.Context(), mux.Vars(r)["eventId"], from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOccurrences(w, occurrences)
}

func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	if err := h.calendar.ExportICS(r.Context(), mux.Vars(r)["calendarId"], &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(buf.String())); err != nil {
		log.Errorf("Failed to write calendar export: %v", err)
	}
}

func (h *Handler) ImportICS(w http.ResponseWriter, r *http.Request) {
	result, err := h.calendar.ImportICS(r.Context(), mux.Vars(r)["calendarId"], r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, resultToDTO(result))
}

func writeOccurrences(w http.ResponseWriter, occurrences []Occurrence) {
	dtos := make([]OccurrenceDTO, 0, len(occurrences))
	for _, o := range occurrences {
		dtos = append(dtos, occurrenceToDTO(o))
	}
	log.Tracef("Occurrences returned: %d", len(dtos))
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// parseWindow reads the from and to query parameters. A date without time
// covers that whole day.
func parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := parseBound(r.URL.Query().Get("from"), false)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from (date) format", "'from' must be in RFC3339 or YYYY-MM-DD format")
		return time.Time{}, time.Time{}, false
	}
	to, err := parseBound(r.URL.Query().Get("to"), true)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to (date) format", "'to' must be in RFC3339 or YYYY-MM-DD format")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseBound(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		rest.WriteError(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, ErrNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrConsistency):
		rest.WriteError(w, http.StatusConflict, "Conflicting changes", err.Error())
	default:
		log.Errorf("Calendar request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal error", err.Error())
	}
}
