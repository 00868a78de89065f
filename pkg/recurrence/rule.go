package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")
var ErrInvalidWindow = errors.New("invalid occurrence window")

// RuleError describes which part of a rule is malformed.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidRule, e.Field, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type EndType string

const (
	EndNever EndType = "never"
	EndUntil EndType = "until"
	EndCount EndType = "count"
)

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdays = map[Weekday]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := weekdays[w]; !ok {
		return "", &RuleError{Field: "days_of_week", Reason: fmt.Sprintf("unknown weekday %q", s)}
	}
	return w, nil
}

func WeekdayOf(d time.Weekday) Weekday {
	for name, wd := range weekdays {
		if wd == d {
			return name
		}
	}
	return ""
}

// offset is the position of the weekday in a Monday-first week.
func (w Weekday) offset() int {
	return (int(weekdays[w]) + 6) % 7
}

// Rule describes a repeating pattern and how it terminates.
// Zero DayOfMonth, MonthOfYear and an empty DaysOfWeek mean "same as the anchor".
type Rule struct {
	Frequency   Frequency `json:"frequency" yaml:"frequency"`
	Interval    int       `json:"interval,omitempty" yaml:"interval,omitempty"`
	DaysOfWeek  []Weekday `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`
	DayOfMonth  int       `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`
	MonthOfYear int       `json:"month_of_year,omitempty" yaml:"month_of_year,omitempty"`
	EndType     EndType   `json:"end_type,omitempty" yaml:"end_type,omitempty"`
	Until       *Date     `json:"until,omitempty" yaml:"until,omitempty"`
	Count       int       `json:"count,omitempty" yaml:"count,omitempty"`
}

// Normalized fills in defaults: interval 1 and end type never.
func (r Rule) Normalized() Rule {
	if r.Interval == 0 {
		r.Interval = 1
	}
	if r.EndType == "" {
		switch {
		case r.Until != nil:
			r.EndType = EndUntil
		case r.Count > 0:
			r.EndType = EndCount
		default:
			r.EndType = EndNever
		}
	}
	return r
}

func (r Rule) Clone() Rule {
	out := r
	if r.DaysOfWeek != nil {
		out.DaysOfWeek = append([]Weekday(nil), r.DaysOfWeek...)
	}
	if r.Until != nil {
		until := *r.Until
		out.Until = &until
	}
	return out
}

func (r Rule) Validate() error {
	r = r.Normalized()

	switch r.Frequency {
	case Daily, Weekly, Monthly, Yearly:
	case "":
		return &RuleError{Field: "frequency", Reason: "is required"}
	default:
		return &RuleError{Field: "frequency", Reason: fmt.Sprintf("unsupported frequency %q", r.Frequency)}
	}

	if r.Interval < 1 {
		return &RuleError{Field: "interval", Reason: "must be at least 1"}
	}

	if len(r.DaysOfWeek) > 0 {
		if r.Frequency != Weekly {
			return &RuleError{Field: "days_of_week", Reason: "only allowed with weekly frequency"}
		}
		seen := make(map[Weekday]bool, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			if _, ok := weekdays[d]; !ok {
				return &RuleError{Field: "days_of_week", Reason: fmt.Sprintf("unknown weekday %q", d)}
			}
			if seen[d] {
				return &RuleError{Field: "days_of_week", Reason: fmt.Sprintf("duplicate weekday %q", d)}
			}
			seen[d] = true
		}
	}

	if r.DayOfMonth != 0 {
		if r.Frequency != Monthly {
			return &RuleError{Field: "day_of_month", Reason: "only allowed with monthly frequency"}
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return &RuleError{Field: "day_of_month", Reason: "must be between 1 and 31"}
		}
	}

	if r.MonthOfYear != 0 {
		if r.Frequency != Yearly {
			return &RuleError{Field: "month_of_year", Reason: "only allowed with yearly frequency"}
		}
		if r.MonthOfYear < 1 || r.MonthOfYear > 12 {
			return &RuleError{Field: "month_of_year", Reason: "must be between 1 and 12"}
		}
	}

	switch r.EndType {
	case EndNever:
		if r.Until != nil || r.Count != 0 {
			return &RuleError{Field: "end_type", Reason: "never-ending rule cannot have until or count"}
		}
	case EndUntil:
		if r.Until == nil || r.Until.IsZero() {
			return &RuleError{Field: "until", Reason: "is required when end_type is until"}
		}
		if r.Count != 0 {
			return &RuleError{Field: "count", Reason: "cannot be combined with until"}
		}
	case EndCount:
		if r.Count < 1 {
			return &RuleError{Field: "count", Reason: "must be at least 1"}
		}
		if r.Until != nil {
			return &RuleError{Field: "until", Reason: "cannot be combined with count"}
		}
	default:
		return &RuleError{Field: "end_type", Reason: fmt.Sprintf("unsupported end type %q", r.EndType)}
	}

	return nil
}

// ForAnchor pins every anchor-derived default into the rule, so the same
// pattern survives being re-anchored on a later date.
func (r Rule) ForAnchor(anchor Date) Rule {
	r = r.Normalized().Clone()
	switch r.Frequency {
	case Weekly:
		if len(r.DaysOfWeek) == 0 {
			r.DaysOfWeek = []Weekday{WeekdayOf(anchor.Weekday())}
		}
		sortWeekdays(r.DaysOfWeek)
	case Monthly:
		if r.DayOfMonth == 0 {
			r.DayOfMonth = anchor.Day
		}
	case Yearly:
		if r.MonthOfYear == 0 {
			r.MonthOfYear = int(anchor.Month)
		}
	}
	return r
}

// TruncateBefore ends the rule on the day before date. A count-bounded rule
// becomes until-bounded.
func (r Rule) TruncateBefore(date Date) Rule {
	r = r.Normalized().Clone()
	last := date.AddDays(-1)
	if r.EndType == EndUntil && r.Until != nil && r.Until.Before(last) {
		return r
	}
	r.EndType = EndUntil
	r.Until = &last
	r.Count = 0
	return r
}

func (r Rule) Equal(o Rule) bool {
	a, b := r.Normalized(), o.Normalized()
	if a.Frequency != b.Frequency || a.Interval != b.Interval || a.DayOfMonth != b.DayOfMonth ||
		a.MonthOfYear != b.MonthOfYear || a.EndType != b.EndType || a.Count != b.Count {
		return false
	}
	if (a.Until == nil) != (b.Until == nil) || (a.Until != nil && *a.Until != *b.Until) {
		return false
	}
	if len(a.DaysOfWeek) != len(b.DaysOfWeek) {
		return false
	}
	for i := range a.DaysOfWeek {
		if a.DaysOfWeek[i] != b.DaysOfWeek[i] {
			return false
		}
	}
	return true
}
