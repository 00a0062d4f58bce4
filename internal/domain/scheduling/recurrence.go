package scheduling

import (
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/pkg/civil"
)

// MaxOccurrences caps the size of a recurring series.
const MaxOccurrences = 52

const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// RecurrenceRule describes how a series repeats. Exactly one of Count and
// Until bounds the series; Until is inclusive.
type RecurrenceRule struct {
	Frequency  string      `json:"frequency"`
	Interval   int         `json:"interval,omitempty"`
	DaysOfWeek []string    `json:"days_of_week,omitempty"`
	Count      int         `json:"count,omitempty"`
	Until      *civil.Date `json:"until,omitempty"`
	Timezone   string      `json:"timezone,omitempty"`
}

// Occurrence is one generated slot of a series.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 3 {
		s = s[:3]
	}
	d, ok := weekdayNames[s]
	return d, ok
}

// normalize validates the rule and fills defaults.
func (r *RecurrenceRule) normalize() ([]time.Weekday, *time.Location, error) {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
	default:
		return nil, nil, apperr.Invalid("recurrence frequency must be daily, weekly, biweekly or monthly")
	}
	if r.Interval == 0 {
		r.Interval = 1
	}
	if r.Interval < 1 {
		return nil, nil, apperr.Invalid("recurrence interval must be at least 1")
	}
	if r.Count == 0 && r.Until == nil {
		return nil, nil, apperr.Invalid("recurrence requires count or until")
	}
	if r.Count != 0 && r.Until != nil {
		return nil, nil, apperr.Invalid("recurrence takes count or until, not both")
	}
	if r.Count < 0 || r.Count > MaxOccurrences {
		return nil, nil, apperr.Invalid("recurrence count must be between 1 and %d", MaxOccurrences)
	}

	var days []time.Weekday
	if len(r.DaysOfWeek) > 0 {
		if r.Frequency != FrequencyWeekly && r.Frequency != FrequencyBiweekly {
			return nil, nil, apperr.Invalid("days_of_week only applies to weekly and biweekly recurrence")
		}
		seen := make(map[time.Weekday]bool)
		for _, name := range r.DaysOfWeek {
			d, ok := parseWeekday(name)
			if !ok {
				return nil, nil, apperr.Invalid("invalid day of week: %s", name)
			}
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	}

	loc := time.UTC
	if r.Timezone != "" {
		l, err := time.LoadLocation(r.Timezone)
		if err != nil {
			return nil, nil, apperr.Invalid("invalid timezone: %s", r.Timezone)
		}
		loc = l
	}
	return days, loc, nil
}

// Expand lists every occurrence of the series that starts at start and ends
// at end. Wall-clock times are kept in the rule's timezone across DST changes.
func Expand(start, end time.Time, rule *RecurrenceRule) ([]Occurrence, error) {
	if !end.After(start) {
		return nil, apperr.Invalid("end_time must be after start_time")
	}
	if rule == nil {
		return []Occurrence{{Start: start, End: end}}, nil
	}
	days, loc, err := rule.normalize()
	if err != nil {
		return nil, err
	}

	start = start.In(loc)
	duration := end.Sub(start)
	if rule.Until != nil && civil.DateOf(start).After(rule.Until.Time) {
		return nil, apperr.Invalid("recurrence until precedes the first appointment")
	}

	var out []Occurrence
	// emit reports whether generation should continue.
	emit := func(t time.Time) (bool, error) {
		if t.Before(start) {
			return true, nil
		}
		if rule.Until != nil && civil.DateOf(t).After(rule.Until.Time) {
			return false, nil
		}
		if len(out) == MaxOccurrences {
			return false, apperr.Invalid("recurrence produces more than %d occurrences", MaxOccurrences)
		}
		out = append(out, Occurrence{Start: t.UTC(), End: t.Add(duration).UTC()})
		return rule.Count == 0 || len(out) < rule.Count, nil
	}

	switch rule.Frequency {
	case FrequencyDaily:
		for i := 0; ; i++ {
			more, err := emit(atDayOffset(start, i*rule.Interval))
			if err != nil || !more {
				return out, err
			}
		}

	case FrequencyWeekly, FrequencyBiweekly:
		step := rule.Interval
		if rule.Frequency == FrequencyBiweekly {
			step *= 2
		}
		if len(days) == 0 {
			days = []time.Weekday{start.Weekday()}
		}
		weekStart := -int(start.Weekday())
		for week := 0; ; week += step {
			for _, d := range days {
				more, err := emit(atDayOffset(start, weekStart+week*7+int(d)))
				if err != nil || !more {
					return out, err
				}
			}
		}

	case FrequencyMonthly:
		for i := 0; ; i++ {
			more, err := emit(atMonthOffset(start, i*rule.Interval))
			if err != nil || !more {
				return out, err
			}
		}
	}
	return out, nil
}

// atDayOffset keeps the wall-clock time of t on the date n days later.
func atDayOffset(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

// atMonthOffset moves t n months ahead, clamping the day to the month's end
// so that the 31st repeats on the last day of shorter months.
func atMonthOffset(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	lastDay := now.With(first).EndOfMonth().Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}
