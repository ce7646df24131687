package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/eventseries/backend/internal/storage/models"
)

const eventColumns = `id, kind, venue_id, title, notes, timezone, start_at, end_at,
	frequency, rule_interval, by_weekday, rule_count, repeat_until, exclude_dates, recurrence_hash,
	is_canceled, canceled_on, cancellation_reason, created_at, updated_at`

// The recurrence hash and created_at are written once and never updated.
const upsertEvent = `
	INSERT INTO events (` + eventColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		venue_id = excluded.venue_id,
		title = excluded.title,
		notes = excluded.notes,
		timezone = excluded.timezone,
		start_at = excluded.start_at,
		end_at = excluded.end_at,
		frequency = excluded.frequency,
		rule_interval = excluded.rule_interval,
		by_weekday = excluded.by_weekday,
		rule_count = excluded.rule_count,
		repeat_until = excluded.repeat_until,
		exclude_dates = excluded.exclude_dates,
		is_canceled = excluded.is_canceled,
		canceled_on = excluded.canceled_on,
		cancellation_reason = excluded.cancellation_reason,
		updated_at = excluded.updated_at
`

// EventRepository provides data access for single and recurring events.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// GetByID retrieves an event by its ID. It returns nil, nil when no event exists.
func (r *EventRepository) GetByID(ctx context.Context, id string) (models.EventRecord, error) {
	row := r.DB().QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)

	rec, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	return rec, nil
}

// StreamAll iterates over every stored event ordered by start time. Rows are
// scanned lazily as the caller ranges over the sequence.
func (r *EventRepository) StreamAll(ctx context.Context) iter.Seq2[models.EventRecord, error] {
	return func(yield func(models.EventRecord, error) bool) {
		rows, err := r.DB().QueryContext(ctx, "SELECT "+eventColumns+" FROM events ORDER BY start_at, id")
		if err != nil {
			yield(nil, fmt.Errorf("querying events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanEvent(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scanning event: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterating events: %w", err))
		}
	}
}

// List retrieves all events ordered by start time.
func (r *EventRepository) List(ctx context.Context) ([]models.EventRecord, error) {
	var events []models.EventRecord
	for rec, err := range r.StreamAll(ctx) {
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	return events, nil
}

// Save inserts an event or replaces the stored one with the same ID.
func (r *EventRepository) Save(ctx context.Context, rec models.EventRecord) error {
	return saveEvent(ctx, r.DB(), rec)
}

// SaveBatch saves all records in a single transaction. Either every record is
// written or none is.
func (r *EventRepository) SaveBatch(ctx context.Context, records []models.EventRecord) error {
	return r.Transaction(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			if err := saveEvent(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveEvent(ctx context.Context, q Queryable, rec models.EventRecord) error {
	args, err := eventArgs(rec)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, upsertEvent, args...); err != nil {
		return fmt.Errorf("saving event %s: %w", rec.EventID(), err)
	}
	return nil
}

func eventArgs(rec models.EventRecord) ([]any, error) {
	switch e := rec.(type) {
	case models.SingleEvent:
		return []any{
			e.ID, models.EventKindSingle, e.Venue, e.Public.Title, e.Private.Notes,
			zoneName(e.Public.Start), e.Public.Start.UTC(), e.Public.End.UTC(),
			nil, nil, nil, nil, nil, nil, nil,
			e.Public.IsCanceled, utcPtr(e.Public.CanceledOn), e.Private.CancellationReason,
			e.Private.CreatedAt.UTC(), e.Private.UpdatedAt.UTC(),
		}, nil

	case models.RecurringEvent:
		rule := e.Public.Rule
		weekdays, err := json.Marshal(nonNil(rule.ByWeekday))
		if err != nil {
			return nil, fmt.Errorf("encoding weekdays: %w", err)
		}
		excluded := make([]time.Time, 0, len(rule.ExcludeDates))
		for _, d := range rule.ExcludeDates {
			excluded = append(excluded, d.UTC())
		}
		exdates, err := json.Marshal(excluded)
		if err != nil {
			return nil, fmt.Errorf("encoding exclude dates: %w", err)
		}

		var count any
		if rule.Count > 0 {
			count = rule.Count
		}

		return []any{
			e.ID, models.EventKindRecurring, e.Venue, e.Public.Title, e.Private.Notes,
			zoneName(e.Public.TemplateStart), e.Public.TemplateStart.UTC(), e.Public.TemplateEnd.UTC(),
			string(rule.Frequency), rule.Interval, string(weekdays), count, utcPtr(rule.RepeatUntil),
			string(exdates), e.Public.RecurrenceHash,
			e.Public.IsCanceled, utcPtr(e.Public.CanceledOn), e.Private.CancellationReason,
			e.Private.CreatedAt.UTC(), e.Private.UpdatedAt.UTC(),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported event record %T", rec)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (models.EventRecord, error) {
	var (
		id, kind, venueID, title, notes, timezone string
		start, end, createdAt, updatedAt          time.Time
		frequency, weekdays, exdates, hash        sql.NullString
		interval, count                           sql.NullInt64
		repeatUntil, canceledOn                   sql.NullTime
		isCanceled                                bool
		cancellationReason                        string
	)

	if err := s.Scan(
		&id, &kind, &venueID, &title, &notes, &timezone, &start, &end,
		&frequency, &interval, &weekdays, &count, &repeatUntil, &exdates, &hash,
		&isCanceled, &canceledOn, &cancellationReason, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	// Times are stored in UTC; the zone of the event is restored so that
	// expansion follows its local calendar.
	loc := zoneLocation(timezone)

	switch models.EventKind(kind) {
	case models.EventKindSingle:
		return models.SingleEvent{
			ID:    id,
			Venue: venueID,
			Public: models.SingleEventPublic{
				Title:      title,
				Start:      start.In(loc),
				End:        end.In(loc),
				IsCanceled: isCanceled,
				CanceledOn: nullTimePtr(canceledOn),
			},
			Private: models.SingleEventPrivate{
				Notes:              notes,
				CancellationReason: cancellationReason,
				CreatedAt:          createdAt.UTC(),
				UpdatedAt:          updatedAt.UTC(),
			},
		}, nil

	case models.EventKindRecurring:
		rule := models.RecurrenceRule{
			Frequency: models.Frequency(frequency.String),
			Interval:  int(interval.Int64),
			Count:     int(count.Int64),
		}
		if weekdays.Valid && weekdays.String != "" {
			if err := json.Unmarshal([]byte(weekdays.String), &rule.ByWeekday); err != nil {
				return nil, fmt.Errorf("decoding weekdays of %s: %w", id, err)
			}
		}
		if exdates.Valid && exdates.String != "" {
			if err := json.Unmarshal([]byte(exdates.String), &rule.ExcludeDates); err != nil {
				return nil, fmt.Errorf("decoding exclude dates of %s: %w", id, err)
			}
		}
		if len(rule.ByWeekday) == 0 {
			rule.ByWeekday = nil
		}
		if len(rule.ExcludeDates) == 0 {
			rule.ExcludeDates = nil
		}
		if repeatUntil.Valid {
			until := repeatUntil.Time.In(loc)
			rule.RepeatUntil = &until
		}

		return models.RecurringEvent{
			ID:    id,
			Venue: venueID,
			Public: models.RecurringEventPublic{
				Title:          title,
				TemplateStart:  start.In(loc),
				TemplateEnd:    end.In(loc),
				Rule:           rule,
				RecurrenceHash: hash.String,
				IsCanceled:     isCanceled,
				CanceledOn:     nullTimePtr(canceledOn),
			},
			Private: models.RecurringEventPrivate{
				Notes:              notes,
				CancellationReason: cancellationReason,
				CreatedAt:          createdAt.UTC(),
				UpdatedAt:          updatedAt.UTC(),
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown event kind %q for %s", kind, id)
	}
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
