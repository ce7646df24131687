package calendar

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/storage/models"
)

const productID = "-//eventseries//instances//EN"

// ExportInstances renders resolved instances of an event as an iCalendar
// document. Every instance becomes its own VEVENT keyed by instance ID, with
// RECURRENCE-ID carrying the originally scheduled start.
func ExportInstances(summary models.EventSummary, instances []models.EventInstance, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(summary.Title)

	for _, in := range instances {
		ev := cal.AddEvent(in.InstanceID)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(summary.Title)
		ev.SetStartAt(in.Start)
		ev.SetEndAt(in.End)

		if summary.Kind == models.EventKindRecurring {
			if original, ok := recurrence.ParseInstanceID(in.ParentEventID, in.InstanceID); ok {
				ev.SetProperty(ical.ComponentPropertyRecurrenceId, original.UTC().Format("20060102T150405Z"))
			}
		}

		if in.IsCanceled {
			ev.SetStatus(ical.ObjectStatusCancelled)
		} else {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal.Serialize()
}
