package calendar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mockassist/mockassist/pkg/recurrence"
)

var ErrValidation = errors.New("validation failed")
var ErrNotFound = errors.New("not found")
var ErrConsistency = errors.New("consistency violation")

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field   string
	EventID string
	Date    *recurrence.Date
	Reason  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s", e.Field)
	}
	if e.EventID != "" {
		fmt.Fprintf(&b, ": event %s", e.EventID)
	}
	if e.Date != nil {
		fmt.Fprintf(&b, ": date %s", e.Date)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConsistencyError names the requested operations that cannot hold at once.
type ConsistencyError struct {
	EventID     string
	Date        recurrence.Date
	Conflicting []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: event %s: date %s: %s", ErrConsistency, e.EventID, e.Date, strings.Join(e.Conflicting, " vs "))
}

func (e *ConsistencyError) Unwrap() error {
	return ErrConsistency
}

func occurrenceNotFound(eventID string, date recurrence.Date) error {
	return &ValidationError{Field: "recurrence_id", EventID: eventID, Date: &date, Reason: "occurrence not found"}
}

// ruleError turns a recurrence rule failure into a ValidationError.
func ruleError(eventID string, err error) error {
	var re *recurrence.RuleError
	if errors.As(err, &re) {
		return &ValidationError{Field: "recurrence." + re.Field, EventID: eventID, Reason: re.Reason}
	}
	if errors.Is(err, recurrence.ErrInvalidWindow) {
		return &ValidationError{Field: "window", EventID: eventID, Reason: err.Error()}
	}
	return err
}
