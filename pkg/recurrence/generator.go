package recurrence

import (
	"fmt"
	"iter"
	"slices"
	"time"
)

// Occurrences yields, in ascending order, every date the rule generates from
// anchor. The sequence is unbounded for never-ending rules: consumers must
// stop on their own, usually by going through Generate.
func (r Rule) Occurrences(anchor Date) iter.Seq[Date] {
	return r.ForAnchor(anchor).walk(anchor, 0)
}

// Generate yields the rule's dates falling inside [from, to], both inclusive.
// The returned sequence is restartable and never runs past to.
func Generate(r Rule, anchor, from, to Date) (iter.Seq[Date], error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow, to, from)
	}

	r = r.ForAnchor(anchor)
	startPeriod := r.periodsBefore(anchor, from)

	return func(yield func(Date) bool) {
		for d := range r.walk(anchor, startPeriod) {
			if d.After(to) {
				return
			}
			if d.Before(from) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}, nil
}

// Includes reports whether the rule generates date.
func (r Rule) Includes(anchor, date Date) (bool, error) {
	seq, err := Generate(r, anchor, date, date)
	if err != nil {
		return false, err
	}
	for range seq {
		return true, nil
	}
	return false, nil
}

// CountBefore returns how many dates the rule generates strictly before date.
func (r Rule) CountBefore(anchor, date Date) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	n := 0
	for d := range r.Occurrences(anchor) {
		if !d.Before(date) {
			break
		}
		n++
	}
	return n, nil
}

// First returns the first date the rule generates, if any.
func (r Rule) First(anchor Date) (Date, bool, error) {
	if err := r.Validate(); err != nil {
		return Date{}, false, err
	}
	for d := range r.Occurrences(anchor) {
		return d, true, nil
	}
	return Date{}, false, nil
}

// walk expects a rule already pinned with ForAnchor.
func (r Rule) walk(anchor Date, startPeriod int) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		emitted := r.emittedBefore(anchor, startPeriod)
		buf := make([]Date, 0, 7)
		for k := startPeriod; ; k++ {
			buf = r.period(anchor, k, buf[:0])
			for _, d := range buf {
				if d.Before(anchor) {
					continue
				}
				if r.EndType == EndUntil && d.After(*r.Until) {
					return
				}
				if r.EndType == EndCount && emitted >= r.Count {
					return
				}
				emitted++
				if !yield(d) {
					return
				}
			}
		}
	}
}

// period appends the candidate dates of the k-th repetition period to buf.
func (r Rule) period(anchor Date, k int, buf []Date) []Date {
	switch r.Frequency {
	case Daily:
		return append(buf, anchor.AddDays(k*r.Interval))
	case Weekly:
		base := weekStart(anchor).AddDays(7 * k * r.Interval)
		for _, wd := range r.DaysOfWeek {
			buf = append(buf, base.AddDays(wd.offset()))
		}
		return buf
	case Monthly:
		total := int(anchor.Month) - 1 + k*r.Interval
		year, month := anchor.Year+total/12, time.Month(total%12+1)
		return append(buf, Date{year, month, min(r.DayOfMonth, daysIn(year, month))})
	case Yearly:
		year, month := anchor.Year+k*r.Interval, time.Month(r.MonthOfYear)
		return append(buf, Date{year, month, min(anchor.Day, daysIn(year, month))})
	}
	return buf
}

// emittedBefore counts the dates generated by the periods before period k.
// Only the first period can hold candidates before the anchor; every later
// one yields the same number of dates.
func (r Rule) emittedBefore(anchor Date, k int) int {
	if k == 0 {
		return 0
	}
	first := 0
	for _, d := range r.period(anchor, 0, nil) {
		if !d.Before(anchor) {
			first++
		}
	}
	perPeriod := 1
	if r.Frequency == Weekly {
		perPeriod = len(r.DaysOfWeek)
	}
	return first + (k-1)*perPeriod
}

// periodsBefore returns a period index whose dates all precede from, one
// period short of the window so nothing inside it is skipped.
func (r Rule) periodsBefore(anchor, from Date) int {
	if !from.After(anchor) {
		return 0
	}
	var elapsed int
	switch r.Frequency {
	case Daily:
		elapsed = anchor.DaysUntil(from)
	case Weekly:
		elapsed = weekStart(anchor).DaysUntil(from) / 7
	case Monthly:
		elapsed = (from.Year-anchor.Year)*12 + int(from.Month) - int(anchor.Month)
	case Yearly:
		elapsed = from.Year - anchor.Year
	}
	return max(0, elapsed/r.Interval-1)
}

func weekStart(d Date) Date {
	return d.AddDays(-WeekdayOf(d.Weekday()).offset())
}

func sortWeekdays(days []Weekday) {
	slices.SortFunc(days, func(a, b Weekday) int {
		return a.offset() - b.offset()
	})
}
