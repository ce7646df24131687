package recurrence

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/eventseries/backend/internal/storage/models"
)

const (
	// DefaultMaxOccurrences caps a single expansion when the window sets no cap.
	DefaultMaxOccurrences = 5000

	instanceIDLayout = "20060102T150405Z"
	exclusionLayout  = "2006-01-02"
)

// Window bounds an expansion. Generation stops after the first occurrence
// starting later than Until (when set) or once MaxOccurrences instances have
// been emitted, whichever comes first.
type Window struct {
	Until          time.Time
	MaxOccurrences int
}

// InstanceID derives the identity of the occurrence of eventID originally
// scheduled at start. It is stable across expansions of the same rule.
func InstanceID(eventID string, start time.Time) string {
	return eventID + "_" + start.UTC().Format(instanceIDLayout)
}

// ParseInstanceID returns the original start encoded in an instance ID
// belonging to eventID.
func ParseInstanceID(eventID, instanceID string) (time.Time, bool) {
	suffix, ok := strings.CutPrefix(instanceID, eventID+"_")
	if !ok {
		return time.Time{}, false
	}
	start, err := time.Parse(instanceIDLayout, suffix)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

// Generate expands rule anchored at templateStart/templateEnd into the
// occurrences of eventID. The rule is validated before anything is returned.
//
// The sequence is lazy and may be ranged over any number of times. Candidates
// falling on an excluded date are skipped but still count toward rule.Count.
func Generate(eventID string, rule models.RecurrenceRule, templateStart, templateEnd time.Time, window Window) (iter.Seq[models.EventInstance], error) {
	if err := Validate(rule); err != nil {
		return nil, err
	}
	if templateEnd.Before(templateStart) {
		return nil, fmt.Errorf("%w: template end %s is before template start %s",
			ErrInvalidRecurrenceRule, templateEnd.Format(time.RFC3339), templateStart.Format(time.RFC3339))
	}

	r, err := rrule.NewRRule(toROption(rule, templateStart))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, err)
	}

	maxOccurrences := window.MaxOccurrences
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}

	loc := templateStart.Location()
	excluded := make(map[string]struct{}, len(rule.ExcludeDates))
	for _, d := range rule.ExcludeDates {
		excluded[d.In(loc).Format(exclusionLayout)] = struct{}{}
	}

	duration := templateEnd.Sub(templateStart)

	return func(yield func(models.EventInstance) bool) {
		next := r.Iterator()
		emitted := 0
		for emitted < maxOccurrences {
			start, ok := next()
			if !ok {
				return
			}
			if !window.Until.IsZero() && start.After(window.Until) {
				return
			}
			if _, skip := excluded[start.In(loc).Format(exclusionLayout)]; skip {
				continue
			}

			instance := models.EventInstance{
				InstanceID:    InstanceID(eventID, start),
				ParentEventID: eventID,
				Start:         start,
				End:           start.Add(duration),
			}
			if !yield(instance) {
				return
			}
			emitted++
		}
	}, nil
}
