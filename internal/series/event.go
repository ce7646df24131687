package series

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/storage/models"
)

// RecurringParams describes a new series. ID is generated when empty.
type RecurringParams struct {
	ID            string
	VenueID       string
	Title         string
	Notes         string
	TemplateStart time.Time
	TemplateEnd   time.Time
	Rule          models.RecurrenceRule
}

// NewRecurringEvent validates p and builds a recurring event with its
// recurrence hash. The hash is fixed here and never recomputed.
func NewRecurringEvent(p RecurringParams, now time.Time) (models.RecurringEvent, error) {
	if err := recurrence.Validate(p.Rule); err != nil {
		return models.RecurringEvent{}, err
	}
	if p.TemplateEnd.Before(p.TemplateStart) {
		return models.RecurringEvent{}, fmt.Errorf("%w: template end is before template start", recurrence.ErrInvalidRecurrenceRule)
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	rule := p.Rule.Clone()

	return models.RecurringEvent{
		ID:    id,
		Venue: p.VenueID,
		Public: models.RecurringEventPublic{
			Title:          p.Title,
			TemplateStart:  p.TemplateStart,
			TemplateEnd:    p.TemplateEnd,
			Rule:           rule,
			RecurrenceHash: recurrence.Hash(rule, id, p.VenueID),
		},
		Private: models.RecurringEventPrivate{
			Notes:     p.Notes,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		},
	}, nil
}

// SingleParams describes a new one-off event. ID is generated when empty.
type SingleParams struct {
	ID      string
	VenueID string
	Title   string
	Notes   string
	Start   time.Time
	End     time.Time
}

// NewSingleEvent builds a single event.
func NewSingleEvent(p SingleParams, now time.Time) (models.SingleEvent, error) {
	if p.End.Before(p.Start) {
		return models.SingleEvent{}, fmt.Errorf("event end %s is before start %s",
			p.End.Format(time.RFC3339), p.Start.Format(time.RFC3339))
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	return models.SingleEvent{
		ID:    id,
		Venue: p.VenueID,
		Public: models.SingleEventPublic{
			Title: p.Title,
			Start: p.Start,
			End:   p.End,
		},
		Private: models.SingleEventPrivate{
			Notes:     p.Notes,
			CreatedAt: now.UTC(),
			UpdatedAt: now.UTC(),
		},
	}, nil
}
