package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventseries/backend/internal/storage/models"
)

// ErrFeedNotFound is returned when deleting an unknown feed.
var ErrFeedNotFound = errors.New("feed not found")

const feedColumns = `id, name, url, venue_id, sync_interval_min, last_sync_at, sync_status,
	sync_error, enabled, created_at, updated_at`

// FeedRepository provides data access for iCalendar feed subscriptions.
type FeedRepository struct {
	BaseRepository
}

// NewFeedRepository creates a new feed repository.
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new feed subscription.
func (r *FeedRepository) Create(ctx context.Context, feed *models.FeedSubscription) error {
	feed.ID = GenerateID()
	feed.CreatedAt = r.Now()
	feed.UpdatedAt = feed.CreatedAt
	feed.SyncStatus = models.SyncStatusPending

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO feed_subscriptions (
			id, name, url, venue_id, sync_interval_min, sync_status, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		feed.ID, feed.Name, feed.URL, feed.VenueID, feed.SyncIntervalMin,
		feed.SyncStatus, feed.Enabled, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting feed: %w", err)
	}

	return nil
}

// GetByID retrieves a feed by its ID. It returns nil, nil when no feed exists.
func (r *FeedRepository) GetByID(ctx context.Context, id string) (*models.FeedSubscription, error) {
	feed := &models.FeedSubscription{}

	err := r.DB().QueryRowContext(ctx, "SELECT "+feedColumns+" FROM feed_subscriptions WHERE id = ?", id).Scan(
		&feed.ID, &feed.Name, &feed.URL, &feed.VenueID, &feed.SyncIntervalMin,
		&feed.LastSyncAt, &feed.SyncStatus, &feed.SyncError,
		&feed.Enabled, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}

	return feed, nil
}

// List retrieves all feed subscriptions ordered by name.
func (r *FeedRepository) List(ctx context.Context) ([]models.FeedSubscription, error) {
	return r.query(ctx, "SELECT "+feedColumns+" FROM feed_subscriptions ORDER BY name")
}

// ListEnabled retrieves enabled feeds, least recently synced first.
func (r *FeedRepository) ListEnabled(ctx context.Context) ([]models.FeedSubscription, error) {
	return r.query(ctx, "SELECT "+feedColumns+` FROM feed_subscriptions
		WHERE enabled = 1
		ORDER BY last_sync_at ASC NULLS FIRST`)
}

func (r *FeedRepository) query(ctx context.Context, query string) ([]models.FeedSubscription, error) {
	rows, err := r.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying feeds: %w", err)
	}
	defer rows.Close()

	feeds := []models.FeedSubscription{}
	for rows.Next() {
		var feed models.FeedSubscription
		if err := rows.Scan(
			&feed.ID, &feed.Name, &feed.URL, &feed.VenueID, &feed.SyncIntervalMin,
			&feed.LastSyncAt, &feed.SyncStatus, &feed.SyncError,
			&feed.Enabled, &feed.CreatedAt, &feed.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

// UpdateSyncStatus records the outcome of a sync. last_sync_at only moves on
// success.
func (r *FeedRepository) UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error {
	now := r.Now()
	var lastSyncAt any
	if status == models.SyncStatusSuccess {
		lastSyncAt = now
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE feed_subscriptions SET
			sync_status = ?, sync_error = ?, last_sync_at = COALESCE(?, last_sync_at), updated_at = ?
		WHERE id = ?
	`, status, syncError, lastSyncAt, now, id)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}

	return nil
}

// Delete removes a feed by ID. Events imported from it are kept.
func (r *FeedRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM feed_subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting feed: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, id)
	}

	return nil
}
