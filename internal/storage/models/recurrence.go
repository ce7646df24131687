package models

import (
	"slices"
	"time"
)

// Frequency is the unit a recurrence rule repeats in.
type Frequency string

// Frequency constants
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// RecurrenceRule is the normalized description of a repeating pattern.
//
// Count of zero means no count limit and a nil RepeatUntil means no end date.
// ByWeekday and ExcludeDates are sets: their order carries no meaning.
type RecurrenceRule struct {
	Frequency    Frequency      `json:"frequency" yaml:"frequency"`
	Interval     int            `json:"interval" yaml:"interval"`
	ByWeekday    []time.Weekday `json:"by_weekday,omitempty" yaml:"by_weekday,omitempty"`
	Count        int            `json:"count,omitempty" yaml:"count,omitempty"`
	RepeatUntil  *time.Time     `json:"repeat_until,omitempty" yaml:"repeat_until,omitempty"`
	ExcludeDates []time.Time    `json:"exclude_dates,omitempty" yaml:"exclude_dates,omitempty"`
}

// IsOpenEnded reports whether the rule has neither a count nor an end date.
func (r RecurrenceRule) IsOpenEnded() bool {
	return r.Count == 0 && r.RepeatUntil == nil
}

// Clone returns a deep copy of the rule.
func (r RecurrenceRule) Clone() RecurrenceRule {
	out := r
	out.ByWeekday = slices.Clone(r.ByWeekday)
	out.ExcludeDates = slices.Clone(r.ExcludeDates)
	if r.RepeatUntil != nil {
		until := *r.RepeatUntil
		out.RepeatUntil = &until
	}
	return out
}
