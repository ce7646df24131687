package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/storage/models"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db, zerolog.Nop()))
	return db
}

func sampleSeries(t *testing.T, id string) models.RecurringEvent {
	t.Helper()
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	start := time.Date(2025, 3, 3, 19, 0, 0, 0, berlin)
	until := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	rule := models.RecurrenceRule{
		Frequency:    models.FrequencyWeekly,
		Interval:     1,
		ByWeekday:    []time.Weekday{time.Monday, time.Thursday},
		RepeatUntil:  &until,
		ExcludeDates: []time.Time{time.Date(2025, 4, 21, 0, 0, 0, 0, time.UTC)},
	}
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	return models.RecurringEvent{
		ID:    id,
		Venue: "venue-1",
		Public: models.RecurringEventPublic{
			Title:          "Jazz night",
			TemplateStart:  start,
			TemplateEnd:    start.Add(3 * time.Hour),
			Rule:           rule,
			RecurrenceHash: recurrence.Hash(rule, id, "venue-1"),
		},
		Private: models.RecurringEventPrivate{CreatedAt: created, UpdatedAt: created},
	}
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := openDB(t)

	assert.NoError(t, storage.RunMigrations(db, zerolog.Nop()))
}

func TestEventRepositoryRoundTripsRecurringEvent(t *testing.T) {
	repo := storage.NewEventRepository(openDB(t))
	ctx := context.Background()
	want := sampleSeries(t, "evt-1")

	require.NoError(t, repo.Save(ctx, want))

	rec, err := repo.GetByID(ctx, "evt-1")
	require.NoError(t, err)
	got, ok := rec.(models.RecurringEvent)
	require.True(t, ok)

	assert.True(t, want.Public.TemplateStart.Equal(got.Public.TemplateStart))
	assert.Equal(t, "Europe/Berlin", got.Public.TemplateStart.Location().String())
	assert.Equal(t, want.Public.Rule.ByWeekday, got.Public.Rule.ByWeekday)
	require.Len(t, got.Public.Rule.ExcludeDates, 1)
	assert.True(t, want.Public.Rule.ExcludeDates[0].Equal(got.Public.Rule.ExcludeDates[0]))
	require.NotNil(t, got.Public.Rule.RepeatUntil)
	assert.True(t, want.Public.Rule.RepeatUntil.Equal(*got.Public.Rule.RepeatUntil))
	assert.Zero(t, got.Public.Rule.Count)

	// The stored hash is returned as-is and still matches the stored rule.
	assert.Equal(t, want.Public.RecurrenceHash, got.Public.RecurrenceHash)
	assert.Equal(t, want.Public.RecurrenceHash, recurrence.Hash(got.Public.Rule, got.ID, got.Venue))
}

func TestEventRepositoryKeepsFixedOffsets(t *testing.T) {
	repo := storage.NewEventRepository(openDB(t))
	ctx := context.Background()

	var start time.Time
	require.NoError(t, json.Unmarshal([]byte(`"2025-01-06T20:00:00-05:00"`), &start))
	rule := models.RecurrenceRule{
		Frequency: models.FrequencyWeekly,
		Interval:  1,
		ByWeekday: []time.Weekday{time.Monday, time.Wednesday},
		Count:     3,
	}
	want := models.RecurringEvent{
		ID:    "evening-1",
		Venue: "venue-1",
		Public: models.RecurringEventPublic{
			Title:          "Open mic",
			TemplateStart:  start,
			TemplateEnd:    start.Add(2 * time.Hour),
			Rule:           rule,
			RecurrenceHash: recurrence.Hash(rule, "evening-1", "venue-1"),
		},
	}
	require.NoError(t, repo.Save(ctx, want))

	rec, err := repo.GetByID(ctx, "evening-1")
	require.NoError(t, err)
	got, ok := rec.(models.RecurringEvent)
	require.True(t, ok)

	_, offset := got.Public.TemplateStart.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.Equal(t, 20, got.Public.TemplateStart.Hour())

	expand := func(e models.RecurringEvent) []models.EventInstance {
		seq, err := recurrence.Generate(e.ID, e.Public.Rule, e.Public.TemplateStart, e.Public.TemplateEnd, recurrence.Window{})
		require.NoError(t, err)
		return slices.Collect(seq)
	}
	before, after := expand(want), expand(got)
	require.Len(t, after, 3)
	weekdays := make([]time.Weekday, 0, len(after))
	for i := range after {
		assert.Equal(t, before[i].InstanceID, after[i].InstanceID)
		weekdays = append(weekdays, after[i].Start.In(got.Public.TemplateStart.Location()).Weekday())
	}
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Monday}, weekdays)

	single := models.SingleEvent{
		ID:     "single-offset",
		Venue:  "venue-1",
		Public: models.SingleEventPublic{Title: "Late show", Start: start, End: start.Add(time.Hour)},
	}
	require.NoError(t, repo.Save(ctx, single))
	rec, err = repo.GetByID(ctx, "single-offset")
	require.NoError(t, err)
	_, offset = rec.(models.SingleEvent).Public.Start.Zone()
	assert.Equal(t, -5*3600, offset)
}

func TestEventRepositoryRoundTripsSingleEvent(t *testing.T) {
	repo := storage.NewEventRepository(openDB(t))
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)
	want := models.SingleEvent{
		ID:     "single-1",
		Venue:  "venue-2",
		Public: models.SingleEventPublic{Title: "Gala", Start: start, End: start.Add(4 * time.Hour)},
	}

	require.NoError(t, repo.Save(ctx, want))

	rec, err := repo.GetByID(ctx, "single-1")
	require.NoError(t, err)
	got, ok := rec.(models.SingleEvent)
	require.True(t, ok)
	assert.Equal(t, "Gala", got.Public.Title)
	assert.True(t, start.Equal(got.Public.Start))
	assert.Nil(t, got.Public.CanceledOn)
}

func TestEventRepositoryGetByIDMissing(t *testing.T) {
	repo := storage.NewEventRepository(openDB(t))

	rec, err := repo.GetByID(context.Background(), "missing")

	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEventRepositorySaveBatchAndStream(t *testing.T) {
	repo := storage.NewEventRepository(openDB(t))
	ctx := context.Background()
	a := sampleSeries(t, "evt-a")
	b := sampleSeries(t, "evt-b")
	require.NoError(t, repo.SaveBatch(ctx, []models.EventRecord{a, b}))

	canceledAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveBatch(ctx, []models.EventRecord{a.Cancel(canceledAt, "renovation")}))

	var ids []string
	for rec, err := range repo.StreamAll(ctx) {
		require.NoError(t, err)
		ids = append(ids, rec.EventID())
		if rec.EventID() == "evt-a" {
			e := rec.(models.RecurringEvent)
			assert.True(t, e.Public.IsCanceled)
			require.NotNil(t, e.Public.CanceledOn)
			assert.True(t, canceledAt.Equal(*e.Public.CanceledOn))
			assert.Equal(t, "renovation", e.Private.CancellationReason)
			assert.Equal(t, a.Public.RecurrenceHash, e.Public.RecurrenceHash)
		}
	}
	assert.Equal(t, []string{"evt-a", "evt-b"}, ids)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEventRepositorySaveBatchIsAtomic(t *testing.T) {
	repo := storage.NewEventRepository(openDB(t))
	ctx := context.Background()

	broken := sampleSeries(t, "evt-broken")
	broken.Public.Rule.Frequency = ""

	// The empty frequency violates the frequency check constraint.
	err := repo.SaveBatch(ctx, []models.EventRecord{sampleSeries(t, "evt-ok"), broken})
	require.Error(t, err)

	rec, err := repo.GetByID(ctx, "evt-ok")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOverrideRepositoryUpserts(t *testing.T) {
	db := openDB(t)
	events := storage.NewEventRepository(db)
	overrides := storage.NewOverrideRepository(db)
	ctx := context.Background()
	require.NoError(t, events.Save(ctx, sampleSeries(t, "evt-1")))

	start := time.Date(2025, 3, 6, 18, 0, 0, 0, time.UTC)
	o := &models.InstanceOverride{
		InstanceID:    "evt-1_20250306T180000Z",
		ParentEventID: "evt-1",
		Start:         start,
		End:           start.Add(time.Hour),
	}
	require.NoError(t, overrides.Create(ctx, o))
	created := o.CreatedAt

	o.IsCanceled = true
	require.NoError(t, overrides.Create(ctx, o))

	got, err := overrides.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsCanceled)
	assert.True(t, start.Equal(got[0].Start))
	assert.True(t, created.Equal(got[0].CreatedAt))

	none, err := overrides.GetByEventID(ctx, "evt-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOverrideRepositoryRequiresEvent(t *testing.T) {
	overrides := storage.NewOverrideRepository(openDB(t))
	start := time.Date(2025, 3, 6, 18, 0, 0, 0, time.UTC)

	err := overrides.Create(context.Background(), &models.InstanceOverride{
		InstanceID: "ghost_20250306T180000Z", ParentEventID: "ghost", Start: start, End: start,
	})

	assert.Error(t, err)
}

func TestFeedRepository(t *testing.T) {
	repo := storage.NewFeedRepository(openDB(t))
	ctx := context.Background()

	feed := &models.FeedSubscription{Name: "Club calendar", URL: "https://example.com/club.ics", SyncIntervalMin: 30, Enabled: true}
	require.NoError(t, repo.Create(ctx, feed))
	assert.NotEmpty(t, feed.ID)
	assert.Equal(t, models.SyncStatusPending, feed.SyncStatus)

	disabled := &models.FeedSubscription{Name: "Archive", URL: "https://example.com/old.ics", SyncIntervalMin: 60}
	require.NoError(t, repo.Create(ctx, disabled))

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, feed.ID, enabled[0].ID)

	msg := "timeout"
	require.NoError(t, repo.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusError, &msg))
	got, err := repo.GetByID(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "timeout", *got.SyncError)
	assert.Nil(t, got.LastSyncAt)

	require.NoError(t, repo.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusSuccess, nil))
	got, err = repo.GetByID(ctx, feed.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastSyncAt)
	assert.Nil(t, got.SyncError)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.Delete(ctx, disabled.ID))
	assert.True(t, errors.Is(repo.Delete(ctx, disabled.ID), storage.ErrFeedNotFound))

	missing, err := repo.GetByID(ctx, disabled.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
