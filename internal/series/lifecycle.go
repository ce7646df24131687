// Package series manages the lifecycle of recurring event series.
package series

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/storage/models"
)

// ErrCancelSeriesFailed matches every error returned by a failed series
// cancellation. The batch must be treated as unconfirmed.
var ErrCancelSeriesFailed = errors.New("cancel series failed")

// CancelSeriesError reports which step of a series cancellation failed.
type CancelSeriesError struct {
	Hash string
	Op   string
	Err  error
}

func (e *CancelSeriesError) Error() string {
	return fmt.Sprintf("cancel series %s: %s: %v", e.Hash, e.Op, e.Err)
}

func (e *CancelSeriesError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCancelSeriesFailed.
func (e *CancelSeriesError) Is(target error) bool {
	return target == ErrCancelSeriesFailed
}

// EventStore is the persistence the lifecycle manager needs.
type EventStore interface {
	GetByID(ctx context.Context, id string) (models.EventRecord, error)
	StreamAll(ctx context.Context) iter.Seq2[models.EventRecord, error]
	SaveBatch(ctx context.Context, records []models.EventRecord) error
}

// Manager cancels series by their recurrence hash.
type Manager struct {
	store EventStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewManager creates a new series lifecycle manager.
func NewManager(store EventStore, log zerolog.Logger) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "series").Logger(),
	}
}

// WithClock replaces the manager's time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CancelSeries marks every active recurring event with the given hash as
// canceled and persists them in one batch. It returns the number of events
// canceled; a repeated call finds nothing left to cancel and returns 0.
func (m *Manager) CancelSeries(ctx context.Context, hash, reason string) (int, error) {
	at := m.now().UTC()

	var batch []models.EventRecord
	for rec, err := range m.store.StreamAll(ctx) {
		if err != nil {
			return 0, &CancelSeriesError{Hash: hash, Op: "streaming events", Err: err}
		}
		e, ok := rec.(models.RecurringEvent)
		if !ok || e.Public.RecurrenceHash != hash || e.Public.IsCanceled {
			continue
		}
		batch = append(batch, e.Cancel(at, reason))
	}

	if len(batch) == 0 {
		m.log.Debug().Str("hash", hash).Msg("No active events left in series")
		return 0, nil
	}

	if err := m.store.SaveBatch(ctx, batch); err != nil {
		return 0, &CancelSeriesError{Hash: hash, Op: "saving batch", Err: err}
	}

	m.log.Info().
		Str("hash", hash).
		Int("canceled", len(batch)).
		Str("reason", reason).
		Msg("Series canceled")

	return len(batch), nil
}

// CancelEventSeries cancels the series the given recurring event belongs to.
func (m *Manager) CancelEventSeries(ctx context.Context, eventID, reason string) (string, int, error) {
	rec, err := m.store.GetByID(ctx, eventID)
	if err != nil {
		return "", 0, fmt.Errorf("loading event: %w", err)
	}

	switch e := rec.(type) {
	case nil:
		return "", 0, fmt.Errorf("%w: %s", instance.ErrEventNotFound, eventID)
	case models.SingleEvent:
		return "", 0, fmt.Errorf("%w: %s", instance.ErrNotRecurring, e.ID)
	case models.RecurringEvent:
		n, err := m.CancelSeries(ctx, e.Public.RecurrenceHash, reason)
		return e.Public.RecurrenceHash, n, err
	default:
		return "", 0, fmt.Errorf("unsupported event record %T", rec)
	}
}
