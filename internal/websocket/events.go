package websocket

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/storage/models"
)

// EventBroadcaster turns domain notifications into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
	log zerolog.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, log zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, log: log}
}

// SeriesCanceled announces a series cancellation on the hash topic.
func (b *EventBroadcaster) SeriesCanceled(_ context.Context, hash string, canceled int, reason string) {
	b.broadcast(hash, NewMessage(TypeSeriesCanceled, SeriesCanceledPayload{
		RecurrenceHash: hash,
		Canceled:       canceled,
		Reason:         reason,
	}))
}

// InstanceOverridden announces a stored override on the event topic.
func (b *EventBroadcaster) InstanceOverridden(_ context.Context, o models.InstanceOverride) {
	b.broadcast(o.ParentEventID, NewMessage(TypeInstanceOverridden, InstanceOverriddenPayload{
		EventID:    o.ParentEventID,
		InstanceID: o.InstanceID,
		Start:      o.Start,
		End:        o.End,
		IsCanceled: o.IsCanceled,
	}))
}

// FeedSyncCompleted announces the result of a feed sync.
func (b *EventBroadcaster) FeedSyncCompleted(_ context.Context, result models.FeedSyncResult) {
	payload := FeedSyncPayload{
		FeedID:           result.FeedID,
		FeedName:         result.FeedName,
		Status:           models.SyncStatusSuccess,
		EventsFound:      result.EventsFound,
		EventsCreated:    result.EventsCreated,
		EventsUpdated:    result.EventsUpdated,
		EventsSkipped:    result.EventsSkipped,
		OverridesApplied: result.OverridesApplied,
	}
	if result.Error != nil {
		payload.Status = models.SyncStatusError
	}

	b.broadcast(result.FeedID, NewMessage(TypeFeedSyncCompleted, payload))
}

// FeedSyncFailed announces a failed feed sync.
func (b *EventBroadcaster) FeedSyncFailed(_ context.Context, feedID, feedName string, err error) {
	b.broadcast(feedID, NewMessage(TypeFeedSyncError, FeedSyncErrorPayload{
		FeedID:   feedID,
		FeedName: feedName,
		Error:    "sync_error",
		Message:  err.Error(),
	}))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	b.broadcast("", NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

func (b *EventBroadcaster) broadcast(topic string, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.log.Error().Err(err).Str("type", string(msg.Type)).Msg("Error encoding WebSocket message")
		return
	}

	b.hub.Broadcast(topic, data)
}
