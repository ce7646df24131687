package storage

import (
	"context"
	"fmt"

	"github.com/eventseries/backend/internal/storage/models"
)

// OverrideRepository provides data access for instance overrides.
type OverrideRepository struct {
	BaseRepository
}

// NewOverrideRepository creates a new override repository.
func NewOverrideRepository(db *DB) *OverrideRepository {
	return &OverrideRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// GetByEventID retrieves every override of the given event.
func (r *OverrideRepository) GetByEventID(ctx context.Context, eventID string) ([]models.InstanceOverride, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT instance_id, event_id, start_at, end_at, is_canceled, created_at, updated_at
		FROM instance_overrides
		WHERE event_id = ?
		ORDER BY instance_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.InstanceOverride
	for rows.Next() {
		var o models.InstanceOverride
		if err := rows.Scan(
			&o.InstanceID, &o.ParentEventID, &o.Start, &o.End,
			&o.IsCanceled, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		overrides = append(overrides, o)
	}

	return overrides, rows.Err()
}

// Create stores an override, replacing any existing override of the same
// instance. CreatedAt is kept from the first write.
func (r *OverrideRepository) Create(ctx context.Context, o *models.InstanceOverride) error {
	now := r.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO instance_overrides (
			instance_id, event_id, start_at, end_at, is_canceled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			is_canceled = excluded.is_canceled,
			updated_at = excluded.updated_at
	`,
		o.InstanceID, o.ParentEventID, o.Start.UTC(), o.End.UTC(),
		o.IsCanceled, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving override: %w", err)
	}

	return nil
}
