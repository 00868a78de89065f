package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var toRRuleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var toRRuleDay = map[Weekday]rrule.Weekday{
	Monday:    rrule.MO,
	Tuesday:   rrule.TU,
	Wednesday: rrule.WE,
	Thursday:  rrule.TH,
	Friday:    rrule.FR,
	Saturday:  rrule.SA,
	Sunday:    rrule.SU,
}

// Monday-first, matching rrule.Weekday.Day().
var fromRRuleDay = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ROption converts the rule anchored at dtstart into rrule-go options.
// Day-of-month clipping is expressed as BYMONTHDAY=28..d;BYSETPOS=-1 so an
// RFC 5545 consumer produces the same dates.
func (r Rule) ROption(dtstart time.Time) (rrule.ROption, error) {
	if err := r.Validate(); err != nil {
		return rrule.ROption{}, err
	}
	anchor := DateOf(dtstart)
	p := r.ForAnchor(anchor)

	opt := rrule.ROption{
		Freq:     toRRuleFreq[p.Frequency],
		Dtstart:  dtstart,
		Interval: p.Interval,
	}
	switch p.Frequency {
	case Weekly:
		for _, d := range p.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, toRRuleDay[d])
		}
	case Monthly:
		opt.Bymonthday, opt.Bysetpos = clippedMonthDay(p.DayOfMonth)
	case Yearly:
		opt.Bymonth = []int{p.MonthOfYear}
		opt.Bymonthday, opt.Bysetpos = clippedMonthDay(anchor.Day)
	}

	switch p.EndType {
	case EndCount:
		opt.Count = p.Count
	case EndUntil:
		opt.Until = p.Until.At(23, 59, 59, 0, dtstart.Location())
	}
	return opt, nil
}

// RRule builds an rrule-go rule anchored at dtstart.
func (r Rule) RRule(dtstart time.Time) (*rrule.RRule, error) {
	opt, err := r.ROption(dtstart)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(opt)
}

// RRuleString renders the RFC 5545 RRULE value, without the "RRULE:" prefix.
func (r Rule) RRuleString(dtstart time.Time) (string, error) {
	opt, err := r.ROption(dtstart)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// FromRRule parses the supported subset of an RFC 5545 RRULE value:
// FREQ, INTERVAL, BYDAY (plain weekdays), BYMONTHDAY, BYMONTH, COUNT, UNTIL.
func FromRRule(value string) (Rule, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return Rule{}, &RuleError{Field: "rrule", Reason: err.Error()}
	}
	if len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Byyearday) > 0 || len(opt.Byeaster) > 0 {
		return Rule{}, &RuleError{Field: "rrule", Reason: fmt.Sprintf("unsupported rule %q", value)}
	}

	var rule Rule
	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = Daily
	case rrule.WEEKLY:
		rule.Frequency = Weekly
	case rrule.MONTHLY:
		rule.Frequency = Monthly
	case rrule.YEARLY:
		rule.Frequency = Yearly
	default:
		return Rule{}, &RuleError{Field: "frequency", Reason: fmt.Sprintf("unsupported frequency in %q", value)}
	}
	rule.Interval = max(opt.Interval, 1)

	for i := range opt.Byweekday {
		if opt.Byweekday[i].N() != 0 || rule.Frequency != Weekly {
			return Rule{}, &RuleError{Field: "days_of_week", Reason: fmt.Sprintf("unsupported BYDAY in %q", value)}
		}
		rule.DaysOfWeek = append(rule.DaysOfWeek, fromRRuleDay[opt.Byweekday[i].Day()])
	}

	if rule.Frequency == Monthly && len(opt.Bymonthday) > 0 {
		day, ok := parseClippedMonthDay(opt.Bymonthday, opt.Bysetpos)
		if !ok {
			return Rule{}, &RuleError{Field: "day_of_month", Reason: fmt.Sprintf("unsupported BYMONTHDAY in %q", value)}
		}
		rule.DayOfMonth = day
	}
	if rule.Frequency == Yearly && len(opt.Bymonth) > 0 {
		if len(opt.Bymonth) != 1 {
			return Rule{}, &RuleError{Field: "month_of_year", Reason: fmt.Sprintf("unsupported BYMONTH in %q", value)}
		}
		rule.MonthOfYear = opt.Bymonth[0]
	}

	switch {
	case opt.Count > 0:
		rule.EndType = EndCount
		rule.Count = opt.Count
	case !opt.Until.IsZero():
		until := DateOf(opt.Until)
		rule.EndType = EndUntil
		rule.Until = &until
	default:
		rule.EndType = EndNever
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func clippedMonthDay(day int) ([]int, []int) {
	if day <= 28 {
		return []int{day}, nil
	}
	days := make([]int, 0, day-27)
	for d := 28; d <= day; d++ {
		days = append(days, d)
	}
	return days, []int{-1}
}

func parseClippedMonthDay(days, setpos []int) (int, bool) {
	if len(days) == 1 && len(setpos) == 0 && days[0] >= 1 {
		return days[0], true
	}
	if len(setpos) != 1 || setpos[0] != -1 || days[0] != 28 {
		return 0, false
	}
	for i, d := range days {
		if d != 28+i {
			return 0, false
		}
	}
	return days[len(days)-1], true
}
