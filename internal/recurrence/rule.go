// Package recurrence expands recurrence rules into concrete occurrences and
// derives the stable identity of a series.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/eventseries/backend/internal/storage/models"
)

// ErrInvalidRecurrenceRule is returned for malformed or contradictory rules.
var ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

var frequencies = map[models.Frequency]rrule.Frequency{
	models.FrequencyDaily:   rrule.DAILY,
	models.FrequencyWeekly:  rrule.WEEKLY,
	models.FrequencyMonthly: rrule.MONTHLY,
	models.FrequencyYearly:  rrule.YEARLY,
}

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Validate checks a rule for the subset of recurrence semantics this service
// supports. Weekday filters are accepted for daily and weekly rules only.
func Validate(rule models.RecurrenceRule) error {
	if _, ok := frequencies[rule.Frequency]; !ok {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrenceRule, rule.Frequency)
	}
	if rule.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidRecurrenceRule, rule.Interval)
	}
	if rule.Count < 0 {
		return fmt.Errorf("%w: count must not be negative, got %d", ErrInvalidRecurrenceRule, rule.Count)
	}
	for _, wd := range rule.ByWeekday {
		if _, ok := weekdays[wd]; !ok {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRecurrenceRule, int(wd))
		}
	}
	if len(rule.ByWeekday) > 0 &&
		rule.Frequency != models.FrequencyDaily && rule.Frequency != models.FrequencyWeekly {
		return fmt.Errorf("%w: weekday filter not supported for %s rules", ErrInvalidRecurrenceRule, rule.Frequency)
	}
	return nil
}

// toROption maps a validated rule onto rrule-go options anchored at dtstart.
// Exclusions are not part of the option set; the generator applies them by date.
func toROption(rule models.RecurrenceRule, dtstart time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:     frequencies[rule.Frequency],
		Dtstart:  dtstart,
		Interval: rule.Interval,
		Count:    rule.Count,
	}
	if rule.RepeatUntil != nil {
		opt.Until = rule.RepeatUntil.In(dtstart.Location())
	}
	for _, wd := range rule.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, weekdays[wd])
	}
	return opt
}

// FromROption converts rrule-go options, typically parsed from an RRULE
// string, into a RecurrenceRule. Options outside the supported subset
// (BYMONTHDAY, BYSETPOS, sub-daily frequencies, ...) are rejected.
func FromROption(opt rrule.ROption) (models.RecurrenceRule, error) {
	var rule models.RecurrenceRule

	found := false
	for f, rf := range frequencies {
		if rf == opt.Freq {
			rule.Frequency = f
			found = true
			break
		}
	}
	if !found {
		return rule, fmt.Errorf("%w: unsupported frequency %v", ErrInvalidRecurrenceRule, opt.Freq)
	}

	if len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 ||
		len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 ||
		len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return rule, fmt.Errorf("%w: only FREQ, INTERVAL, BYDAY, COUNT and UNTIL are supported", ErrInvalidRecurrenceRule)
	}

	rule.Interval = opt.Interval
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	rule.Count = opt.Count
	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		rule.RepeatUntil = &until
	}

	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return rule, fmt.Errorf("%w: positional weekdays are not supported", ErrInvalidRecurrenceRule)
		}
		// rrule-go numbers weekdays from Monday = 0.
		rule.ByWeekday = append(rule.ByWeekday, time.Weekday((wd.Day()+1)%7))
	}

	return rule, Validate(rule)
}
