package models

import (
	"time"
)

// FeedSubscription represents an external iCalendar feed imported into the event store.
type FeedSubscription struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	VenueID         string     `json:"venue_id"`
	SyncIntervalMin int        `json:"sync_interval_min"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus      string     `json:"sync_status"`
	SyncError       *string    `json:"sync_error,omitempty"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// FeedEvent is an event parsed from an iCalendar feed before it is mapped
// onto an EventRecord.
type FeedEvent struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Canceled    bool

	// RawRule is the RRULE value as found in the feed. Rule is set only when
	// RawRule is within the supported subset.
	RawRule string
	Rule    *RecurrenceRule

	// RecurrenceID is set for VEVENTs that override one occurrence of a series.
	RecurrenceID *time.Time
}

// FeedSyncResult contains the results of a feed sync operation.
type FeedSyncResult struct {
	FeedID           string    `json:"feed_id"`
	FeedName         string    `json:"feed_name"`
	EventsFound      int       `json:"events_found"`
	EventsCreated    int       `json:"events_created"`
	EventsUpdated    int       `json:"events_updated"`
	EventsUnchanged  int       `json:"events_unchanged"`
	EventsSkipped    int       `json:"events_skipped"`
	OverridesApplied int       `json:"overrides_applied"`
	Error            error     `json:"-"`
	SyncedAt         time.Time `json:"synced_at"`
}
