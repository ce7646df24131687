// Package instance resolves the concrete, override-aware occurrences of an event.
package instance

import (
	"iter"

	"github.com/eventseries/backend/internal/storage/models"
)

// Merge overlays overrides onto generated instances. A matching override
// replaces the instance's start, end and cancellation state; the instance and
// parent IDs are kept. Overrides that match nothing in generated are ignored.
func Merge(generated iter.Seq[models.EventInstance], overrides map[string]models.InstanceOverride) iter.Seq[models.EventInstance] {
	return func(yield func(models.EventInstance) bool) {
		for in := range generated {
			if o, ok := overrides[in.InstanceID]; ok {
				in.Start = o.Start
				in.End = o.End
				in.IsCanceled = o.IsCanceled
				in.IsOverridden = true
			}
			if !yield(in) {
				return
			}
		}
	}
}

// IndexOverrides keys the overrides of eventID by instance ID. Entries with no
// instance ID, a different parent, or an end before their start are dropped
// and counted. When an instance ID repeats, the most recently updated entry
// wins; ties keep the later entry.
func IndexOverrides(eventID string, overrides []models.InstanceOverride) (map[string]models.InstanceOverride, int) {
	index := make(map[string]models.InstanceOverride, len(overrides))
	dropped := 0
	for _, o := range overrides {
		if o.InstanceID == "" || o.ParentEventID != eventID || o.End.Before(o.Start) {
			dropped++
			continue
		}
		if prev, ok := index[o.InstanceID]; ok && prev.UpdatedAt.After(o.UpdatedAt) {
			continue
		}
		index[o.InstanceID] = o
	}
	return index, dropped
}
