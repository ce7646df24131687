package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/series"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/storage/models"
)

const feedCancelReason = "canceled in feed"

// feedNamespace scopes imported event IDs so that the same UID in two feeds
// maps to two events.
var feedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("eventseries:feed"))

// EventID returns the deterministic ID of the event imported from uid in feedID.
func EventID(feedID, uid string) string {
	return uuid.NewSHA1(feedNamespace, []byte(feedID+"|"+uid)).String()
}

// FeedStore is the feed persistence the sync service needs.
type FeedStore interface {
	GetByID(ctx context.Context, id string) (*models.FeedSubscription, error)
	ListEnabled(ctx context.Context) ([]models.FeedSubscription, error)
	UpdateSyncStatus(ctx context.Context, id string, status string, syncError *string) error
}

// EventStore is the event persistence the sync service needs.
type EventStore interface {
	GetByID(ctx context.Context, id string) (models.EventRecord, error)
	Save(ctx context.Context, rec models.EventRecord) error
}

// OverrideStore is the override persistence the sync service needs.
type OverrideStore interface {
	Create(ctx context.Context, override *models.InstanceOverride) error
}

// SyncService imports feed contents into the event store.
type SyncService struct {
	feeds     FeedStore
	events    EventStore
	overrides OverrideStore
	parser    *Parser
	now       func() time.Time
	log       zerolog.Logger
}

// NewSyncService creates a new feed sync service.
func NewSyncService(feeds FeedStore, events EventStore, overrides OverrideStore, parser *Parser, log zerolog.Logger) *SyncService {
	return &SyncService{
		feeds:     feeds,
		events:    events,
		overrides: overrides,
		parser:    parser,
		now:       time.Now,
		log:       log.With().Str("component", "feed_sync").Logger(),
	}
}

// SyncFeed imports a single feed and returns the result.
//
// New VEVENTs become events with IDs derived from the feed and UID. Series
// already imported keep their rule and hash; only their title, notes and
// cancellation follow the feed. VEVENTs with a RECURRENCE-ID become instance
// overrides of their series.
func (s *SyncService) SyncFeed(ctx context.Context, feedID string) (*models.FeedSyncResult, error) {
	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("getting feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrFeedNotFound, feedID)
	}

	result := &models.FeedSyncResult{
		FeedID:   feed.ID,
		FeedName: feed.Name,
		SyncedAt: s.now().UTC(),
	}

	if err := s.feeds.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusSyncing, nil); err != nil {
		s.log.Error().Err(err).Str("feed_id", feed.ID).Msg("Failed to update sync status")
	}

	feedEvents, err := s.parser.FetchAndParse(ctx, feed.URL)
	if err != nil {
		s.fail(ctx, feed.ID, err)
		result.Error = err
		return result, err
	}
	result.EventsFound = len(feedEvents)

	// Masters first so that overrides find their series.
	var overrides []models.FeedEvent
	for _, fe := range feedEvents {
		if fe.RecurrenceID != nil {
			overrides = append(overrides, fe)
			continue
		}
		outcome, err := s.importEvent(ctx, *feed, fe)
		if err != nil {
			s.fail(ctx, feed.ID, err)
			result.Error = err
			return result, err
		}
		switch outcome {
		case outcomeCreated:
			result.EventsCreated++
		case outcomeUpdated:
			result.EventsUpdated++
		case outcomeUnchanged:
			result.EventsUnchanged++
		case outcomeSkipped:
			result.EventsSkipped++
		}
	}

	for _, fe := range overrides {
		applied, err := s.applyOverride(ctx, *feed, fe)
		if err != nil {
			s.fail(ctx, feed.ID, err)
			result.Error = err
			return result, err
		}
		if applied {
			result.OverridesApplied++
		} else {
			result.EventsSkipped++
		}
	}

	if err := s.feeds.UpdateSyncStatus(ctx, feed.ID, models.SyncStatusSuccess, nil); err != nil {
		s.log.Error().Err(err).Str("feed_id", feed.ID).Msg("Failed to update sync status")
	}

	return result, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
)

func (s *SyncService) importEvent(ctx context.Context, feed models.FeedSubscription, fe models.FeedEvent) (outcome, error) {
	if fe.RawRule != "" && fe.Rule == nil {
		s.log.Info().Str("feed_id", feed.ID).Str("uid", fe.UID).Msg("Skipping event with unsupported recurrence rule")
		return outcomeSkipped, nil
	}

	id := EventID(feed.ID, fe.UID)
	existing, err := s.events.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("loading event %s: %w", id, err)
	}

	now := s.now()
	if existing == nil {
		rec, err := s.newRecord(id, feed.VenueID, fe, now)
		if err != nil {
			s.log.Info().Err(err).Str("feed_id", feed.ID).Str("uid", fe.UID).Msg("Skipping invalid feed event")
			return outcomeSkipped, nil
		}
		if err := s.events.Save(ctx, rec); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	updated, changed := refresh(existing, fe, now)
	if !changed {
		return outcomeUnchanged, nil
	}
	if err := s.events.Save(ctx, updated); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

func (s *SyncService) newRecord(id, venueID string, fe models.FeedEvent, now time.Time) (models.EventRecord, error) {
	if fe.Rule != nil {
		e, err := series.NewRecurringEvent(series.RecurringParams{
			ID:            id,
			VenueID:       venueID,
			Title:         fe.Summary,
			Notes:         fe.Description,
			TemplateStart: fe.Start,
			TemplateEnd:   fe.End,
			Rule:          *fe.Rule,
		}, now)
		if err != nil {
			return nil, err
		}
		if fe.Canceled {
			e = e.Cancel(now, feedCancelReason)
		}
		return e, nil
	}

	e, err := series.NewSingleEvent(series.SingleParams{
		ID:      id,
		VenueID: venueID,
		Title:   fe.Summary,
		Notes:   fe.Description,
		Start:   fe.Start,
		End:     fe.End,
	}, now)
	if err != nil {
		return nil, err
	}
	if fe.Canceled {
		e = e.Cancel(now, feedCancelReason)
	}
	return e, nil
}

// refresh applies feed changes to a stored event. Rule and template changes
// of a series are not applied: the hash identifies the series as created.
func refresh(existing models.EventRecord, fe models.FeedEvent, now time.Time) (models.EventRecord, bool) {
	switch e := existing.(type) {
	case models.SingleEvent:
		changed := e.Public.Title != fe.Summary || e.Private.Notes != fe.Description ||
			!e.Public.Start.Equal(fe.Start) || !e.Public.End.Equal(fe.End)
		e.Public.Title = fe.Summary
		e.Private.Notes = fe.Description
		e.Public.Start = fe.Start
		e.Public.End = fe.End
		if changed {
			e.Private.UpdatedAt = now.UTC()
		}
		if fe.Canceled && !e.Public.IsCanceled {
			return e.Cancel(now, feedCancelReason), true
		}
		return e, changed

	case models.RecurringEvent:
		if e.Public.IsCanceled {
			return e, false
		}
		changed := e.Public.Title != fe.Summary || e.Private.Notes != fe.Description
		e.Public.Title = fe.Summary
		e.Private.Notes = fe.Description
		if changed {
			e.Private.UpdatedAt = now.UTC()
		}
		if fe.Canceled {
			return e.Cancel(now, feedCancelReason), true
		}
		return e, changed

	default:
		return existing, false
	}
}

func (s *SyncService) applyOverride(ctx context.Context, feed models.FeedSubscription, fe models.FeedEvent) (bool, error) {
	parentID := EventID(feed.ID, fe.UID)
	parent, err := s.events.GetByID(ctx, parentID)
	if err != nil {
		return false, fmt.Errorf("loading event %s: %w", parentID, err)
	}

	e, ok := parent.(models.RecurringEvent)
	if !ok || e.Public.IsCanceled {
		s.log.Debug().Str("feed_id", feed.ID).Str("uid", fe.UID).Msg("No active series for feed override")
		return false, nil
	}

	override := &models.InstanceOverride{
		InstanceID:    recurrence.InstanceID(e.ID, *fe.RecurrenceID),
		ParentEventID: e.ID,
		Start:         fe.Start,
		End:           fe.End,
		IsCanceled:    fe.Canceled,
	}
	if err := s.overrides.Create(ctx, override); err != nil {
		return false, fmt.Errorf("saving override %s: %w", override.InstanceID, err)
	}
	return true, nil
}

func (s *SyncService) fail(ctx context.Context, feedID string, err error) {
	msg := err.Error()
	if uerr := s.feeds.UpdateSyncStatus(ctx, feedID, models.SyncStatusError, &msg); uerr != nil {
		s.log.Error().Err(uerr).Str("feed_id", feedID).Msg("Failed to update sync status")
	}
}

// SyncAllEnabled synchronizes all enabled feeds. A failing feed is recorded
// in its result and does not stop the others.
func (s *SyncService) SyncAllEnabled(ctx context.Context) ([]models.FeedSyncResult, error) {
	feeds, err := s.feeds.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled feeds: %w", err)
	}

	results := make([]models.FeedSyncResult, 0, len(feeds))
	for _, feed := range feeds {
		result, err := s.SyncFeed(ctx, feed.ID)
		if err != nil {
			s.log.Error().Err(err).Str("feed_id", feed.ID).Msg("Feed sync failed")
			if result == nil {
				result = &models.FeedSyncResult{
					FeedID:   feed.ID,
					FeedName: feed.Name,
					Error:    err,
					SyncedAt: s.now().UTC(),
				}
			}
		}
		results = append(results, *result)
	}

	return results, nil
}
