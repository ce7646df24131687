// Package models contains the domain models for the application.
package models

import (
	"time"
)

// EventKind identifies which variant an EventRecord holds.
type EventKind string

// Event kind constants
const (
	EventKindSingle    EventKind = "single"
	EventKindRecurring EventKind = "recurring"
)

// EventRecord is a persisted event. It is implemented only by SingleEvent and
// RecurringEvent; consumers switch on the concrete type.
type EventRecord interface {
	EventID() string
	VenueID() string
	Kind() EventKind
	isEventRecord()
}

// SingleEvent is a one-off event with exactly one occurrence.
type SingleEvent struct {
	ID      string             `json:"id"`
	Venue   string             `json:"venue_id"`
	Public  SingleEventPublic  `json:"public"`
	Private SingleEventPrivate `json:"private"`
}

// SingleEventPublic holds the externally visible fields of a single event.
type SingleEventPublic struct {
	Title      string     `json:"title"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	IsCanceled bool       `json:"is_canceled"`
	CanceledOn *time.Time `json:"canceled_on,omitempty"`
}

// SingleEventPrivate holds administrative metadata of a single event.
type SingleEventPrivate struct {
	Notes              string    `json:"notes,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RecurringEvent is a series described by a recurrence rule.
type RecurringEvent struct {
	ID      string                `json:"id"`
	Venue   string                `json:"venue_id"`
	Public  RecurringEventPublic  `json:"public"`
	Private RecurringEventPrivate `json:"private"`
}

// RecurringEventPublic holds the externally visible fields of a series.
// RecurrenceHash is derived from the rule, event ID and venue ID when the
// series is created and never recomputed afterwards.
type RecurringEventPublic struct {
	Title          string         `json:"title"`
	TemplateStart  time.Time      `json:"template_start"`
	TemplateEnd    time.Time      `json:"template_end"`
	Rule           RecurrenceRule `json:"recurrence_rule"`
	RecurrenceHash string         `json:"recurrence_hash"`
	IsCanceled     bool           `json:"is_canceled"`
	CanceledOn     *time.Time     `json:"canceled_on,omitempty"`
}

// RecurringEventPrivate holds administrative metadata of a series.
type RecurringEventPrivate struct {
	Notes              string    `json:"notes,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (e SingleEvent) EventID() string { return e.ID }
func (e SingleEvent) VenueID() string { return e.Venue }
func (e SingleEvent) Kind() EventKind { return EventKindSingle }
func (SingleEvent) isEventRecord()    {}

func (e RecurringEvent) EventID() string { return e.ID }
func (e RecurringEvent) VenueID() string { return e.Venue }
func (e RecurringEvent) Kind() EventKind { return EventKindRecurring }
func (RecurringEvent) isEventRecord()    {}

// Duration returns the length of every generated occurrence.
func (e RecurringEvent) Duration() time.Duration {
	return e.Public.TemplateEnd.Sub(e.Public.TemplateStart)
}

// Cancel returns a copy of the series marked canceled at the given time.
// The receiver is left untouched.
func (e RecurringEvent) Cancel(at time.Time, reason string) RecurringEvent {
	out := e
	out.Public.Rule = e.Public.Rule.Clone()
	canceledOn := at.UTC()
	out.Public.IsCanceled = true
	out.Public.CanceledOn = &canceledOn
	out.Private.CancellationReason = reason
	out.Private.UpdatedAt = canceledOn
	return out
}

// Cancel returns a copy of the event marked canceled at the given time.
func (e SingleEvent) Cancel(at time.Time, reason string) SingleEvent {
	out := e
	canceledOn := at.UTC()
	out.Public.IsCanceled = true
	out.Public.CanceledOn = &canceledOn
	out.Private.CancellationReason = reason
	out.Private.UpdatedAt = canceledOn
	return out
}

// EventSummary is a minimal, variant-independent representation for list views.
type EventSummary struct {
	ID             string    `json:"id"`
	Kind           EventKind `json:"kind"`
	VenueID        string    `json:"venue_id"`
	Title          string    `json:"title"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	RecurrenceHash string    `json:"recurrence_hash,omitempty"`
	IsCanceled     bool      `json:"is_canceled"`
}

// Summarize flattens an event record into an EventSummary.
// It returns false for unknown record types.
func Summarize(rec EventRecord) (EventSummary, bool) {
	switch e := rec.(type) {
	case SingleEvent:
		return EventSummary{
			ID:         e.ID,
			Kind:       EventKindSingle,
			VenueID:    e.Venue,
			Title:      e.Public.Title,
			Start:      e.Public.Start,
			End:        e.Public.End,
			IsCanceled: e.Public.IsCanceled,
		}, true
	case RecurringEvent:
		return EventSummary{
			ID:             e.ID,
			Kind:           EventKindRecurring,
			VenueID:        e.Venue,
			Title:          e.Public.Title,
			Start:          e.Public.TemplateStart,
			End:            e.Public.TemplateEnd,
			RecurrenceHash: e.Public.RecurrenceHash,
			IsCanceled:     e.Public.IsCanceled,
		}, true
	default:
		return EventSummary{}, false
	}
}
