package models

import (
	"time"
)

// EventInstance is one concrete occurrence of an event. Instances are built
// on every resolution and never persisted.
type EventInstance struct {
	InstanceID    string    `json:"instance_id"`
	ParentEventID string    `json:"parent_event_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	IsCanceled    bool      `json:"is_canceled"`
	IsOverridden  bool      `json:"is_overridden"`
}

// InstanceOverride is an admin correction to exactly one occurrence of a series.
type InstanceOverride struct {
	InstanceID    string    `json:"instance_id"`
	ParentEventID string    `json:"parent_event_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	IsCanceled    bool      `json:"is_canceled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
