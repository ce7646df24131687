package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/storage/models"
)

// SyncNotifier is told about the outcome of scheduled and manual syncs.
type SyncNotifier interface {
	FeedSyncCompleted(ctx context.Context, result models.FeedSyncResult)
	FeedSyncFailed(ctx context.Context, feedID, feedName string, err error)
}

// Scheduler runs periodic feed sync jobs.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	feeds       FeedStore
	notifier    SyncNotifier
	log         zerolog.Logger

	jobs   map[string]feedJob
	jobsMu sync.RWMutex

	defaultIntervalMin int
}

type feedJob struct {
	entry       cron.EntryID
	intervalMin int
}

// NewScheduler creates a new feed sync scheduler. notifier may be nil.
func NewScheduler(syncService *SyncService, feeds FeedStore, notifier SyncNotifier, defaultIntervalMin int, log zerolog.Logger) *Scheduler {
	if defaultIntervalMin <= 0 {
		defaultIntervalMin = 15
	}

	return &Scheduler{
		cron:               cron.New(cron.WithSeconds()),
		syncService:        syncService,
		feeds:              feeds,
		notifier:           notifier,
		log:                log.With().Str("component", "feed_scheduler").Logger(),
		jobs:               make(map[string]feedJob),
		defaultIntervalMin: defaultIntervalMin,
	}
}

// Start schedules every enabled feed and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	feeds, err := s.feeds.ListEnabled(ctx)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		s.ScheduleFeed(feed)
	}

	// Picks up feeds added, changed or disabled through the API.
	if _, err := s.cron.AddFunc("@every 5m", func() {
		s.refreshSchedules(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Int("feeds", len(feeds)).Msg("Feed scheduler started")

	return nil
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Feed scheduler stopped")
}

// ScheduleFeed adds a feed's sync job, or replaces it when the interval
// changed. A feed already scheduled at the same interval keeps its next run.
// Disabled feeds are unscheduled.
func (s *Scheduler) ScheduleFeed(feed models.FeedSubscription) {
	if !feed.Enabled {
		s.UnscheduleFeed(feed.ID)
		return
	}

	minutes := feed.SyncIntervalMin
	if minutes <= 0 {
		minutes = s.defaultIntervalMin
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if existing, ok := s.jobs[feed.ID]; ok {
		if existing.intervalMin == minutes {
			return
		}
		s.cron.Remove(existing.entry)
		delete(s.jobs, feed.ID)
	}

	id, name := feed.ID, feed.Name
	entryID, err := s.cron.AddFunc(everySpec(minutes), func() {
		s.syncFeed(context.Background(), id, name)
	})
	if err != nil {
		s.log.Error().Err(err).Str("feed_id", feed.ID).Msg("Failed to schedule feed")
		return
	}

	s.jobs[feed.ID] = feedJob{entry: entryID, intervalMin: minutes}
	s.log.Debug().Str("feed_id", feed.ID).Int("interval_min", minutes).Msg("Feed scheduled")
}

// UnscheduleFeed removes a feed from the schedule.
func (s *Scheduler) UnscheduleFeed(feedID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if job, ok := s.jobs[feedID]; ok {
		s.cron.Remove(job.entry)
		delete(s.jobs, feedID)
		s.log.Debug().Str("feed_id", feedID).Msg("Feed unscheduled")
	}
}

// TriggerSync starts an immediate sync of a feed in the background.
func (s *Scheduler) TriggerSync(feedID string) {
	go func() {
		ctx := context.Background()
		feed, err := s.feeds.GetByID(ctx, feedID)
		if err != nil || feed == nil {
			s.log.Warn().Err(err).Str("feed_id", feedID).Msg("Feed not found for sync")
			return
		}
		s.syncFeed(ctx, feed.ID, feed.Name)
	}()
}

func (s *Scheduler) syncFeed(ctx context.Context, feedID, feedName string) {
	result, err := s.syncService.SyncFeed(ctx, feedID)
	if err != nil {
		s.log.Error().Err(err).Str("feed_id", feedID).Msg("Feed sync failed")
		if s.notifier != nil {
			s.notifier.FeedSyncFailed(ctx, feedID, feedName, err)
		}
		return
	}

	s.log.Info().
		Str("feed_id", feedID).
		Int("found", result.EventsFound).
		Int("created", result.EventsCreated).
		Int("updated", result.EventsUpdated).
		Int("skipped", result.EventsSkipped).
		Int("overrides", result.OverridesApplied).
		Msg("Feed sync completed")

	if s.notifier != nil {
		s.notifier.FeedSyncCompleted(ctx, *result)
	}
}

func (s *Scheduler) refreshSchedules(ctx context.Context) {
	feeds, err := s.feeds.ListEnabled(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to refresh feed schedules")
		return
	}

	current := make(map[string]bool, len(feeds))
	for _, feed := range feeds {
		current[feed.ID] = true
		s.ScheduleFeed(feed)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for id, job := range s.jobs {
		if !current[id] {
			s.cron.Remove(job.entry)
			delete(s.jobs, id)
		}
	}
}

// ScheduledFeeds returns the IDs of scheduled feeds.
func (s *Scheduler) ScheduledFeeds() []string {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// NextRun returns the next scheduled sync of a feed, or nil if it is not scheduled.
func (s *Scheduler) NextRun(feedID string) *time.Time {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	if job, ok := s.jobs[feedID]; ok {
		entry := s.cron.Entry(job.entry)
		if !entry.Next.IsZero() {
			return &entry.Next
		}
	}
	return nil
}

func everySpec(minutes int) string {
	return "@every " + (time.Duration(minutes) * time.Minute).String()
}
