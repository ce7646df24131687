package instance

import (
	"cmp"
	"iter"
	"slices"

	"github.com/eventseries/backend/internal/storage/models"
)

// Page is one window of a resolved instance list.
type Page struct {
	Instances  []models.EventInstance `json:"instances"`
	TotalCount int                    `json:"total_count"`

	// ActualStart and ActualEnd are the offsets actually covered by
	// Instances. ActualEnd is ActualStart+len(Instances)-1, so an empty page
	// reports ActualEnd = ActualStart-1.
	ActualStart int `json:"actual_offset_start"`
	ActualEnd   int `json:"actual_offset_end"`
}

// Sort orders instances by start time, then by instance ID.
func Sort(instances []models.EventInstance) {
	slices.SortFunc(instances, func(a, b models.EventInstance) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.InstanceID, b.InstanceID)
	})
}

// Paginate sorts the instances and returns the [offsetStart, offsetEnd] slice
// of them. Offsets are clamped rather than rejected: a negative start becomes
// zero, and an end that is before the start or past the last instance
// becomes the last index. A window left empty after clamping yields an empty
// page with the total count still reported.
func Paginate(instances iter.Seq[models.EventInstance], offsetStart, offsetEnd int) Page {
	all := slices.Collect(instances)
	Sort(all)

	total := len(all)
	if offsetStart < 0 {
		offsetStart = 0
	}
	if offsetEnd < offsetStart || offsetEnd >= total {
		offsetEnd = total - 1
	}

	page := Page{
		Instances:   []models.EventInstance{},
		TotalCount:  total,
		ActualStart: offsetStart,
	}
	if offsetEnd >= offsetStart {
		page.Instances = all[offsetStart : offsetEnd+1]
	}
	page.ActualEnd = offsetStart + len(page.Instances) - 1

	return page
}
