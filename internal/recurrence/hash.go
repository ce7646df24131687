package recurrence

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/eventseries/backend/internal/storage/models"
)

// Hash computes the recurrence hash identifying a series. The result depends
// only on the rule's values, the event ID and the venue ID; the order of
// weekdays and exclusion dates does not matter.
func Hash(rule models.RecurrenceRule, eventID, venueID string) string {
	sum := sha256.Sum256([]byte(canonicalString(rule, eventID, venueID)))
	return hex.EncodeToString(sum[:])
}

// canonicalString serializes the hash inputs with a fixed field order.
// Every field is present, so an absent value cannot collide with a shifted one.
func canonicalString(rule models.RecurrenceRule, eventID, venueID string) string {
	var b strings.Builder

	b.WriteString("event=")
	b.WriteString(strconv.Quote(eventID))
	b.WriteString(";venue=")
	b.WriteString(strconv.Quote(venueID))
	b.WriteString(";freq=")
	b.WriteString(string(rule.Frequency))
	b.WriteString(";interval=")
	b.WriteString(strconv.Itoa(rule.Interval))

	b.WriteString(";byweekday=")
	days := make([]int, 0, len(rule.ByWeekday))
	for _, wd := range rule.ByWeekday {
		days = append(days, int(wd))
	}
	slices.Sort(days)
	days = slices.Compact(days)
	for i, d := range days {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(d))
	}

	b.WriteString(";count=")
	b.WriteString(strconv.Itoa(rule.Count))

	b.WriteString(";until=")
	if rule.RepeatUntil != nil {
		b.WriteString(rule.RepeatUntil.UTC().Format(time.RFC3339Nano))
	}

	b.WriteString(";exdates=")
	dates := slices.Clone(rule.ExcludeDates)
	slices.SortFunc(dates, func(x, y time.Time) int { return x.Compare(y) })
	dates = slices.CompactFunc(dates, func(x, y time.Time) bool { return x.Equal(y) })
	for i, d := range dates {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(d.UTC().Format(time.RFC3339Nano))
	}

	return b.String()
}
