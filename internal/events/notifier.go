// Package events publishes domain notifications to interested parties.
package events

import (
	"context"

	"github.com/eventseries/backend/internal/storage/models"
)

// Notifier receives domain notifications. Implementations must not block the
// caller for long and report their own failures; notifications are best effort.
type Notifier interface {
	SeriesCanceled(ctx context.Context, hash string, canceled int, reason string)
	InstanceOverridden(ctx context.Context, override models.InstanceOverride)
	FeedSyncCompleted(ctx context.Context, result models.FeedSyncResult)
	FeedSyncFailed(ctx context.Context, feedID, feedName string, err error)
}

// Multi fans every notification out to each of its notifiers in order.
type Multi []Notifier

func (m Multi) SeriesCanceled(ctx context.Context, hash string, canceled int, reason string) {
	for _, n := range m {
		n.SeriesCanceled(ctx, hash, canceled, reason)
	}
}

func (m Multi) InstanceOverridden(ctx context.Context, override models.InstanceOverride) {
	for _, n := range m {
		n.InstanceOverridden(ctx, override)
	}
}

func (m Multi) FeedSyncCompleted(ctx context.Context, result models.FeedSyncResult) {
	for _, n := range m {
		n.FeedSyncCompleted(ctx, result)
	}
}

func (m Multi) FeedSyncFailed(ctx context.Context, feedID, feedName string, err error) {
	for _, n := range m {
		n.FeedSyncFailed(ctx, feedID, feedName, err)
	}
}

// Nop discards every notification.
type Nop struct{}

func (Nop) SeriesCanceled(context.Context, string, int, string)         {}
func (Nop) InstanceOverridden(context.Context, models.InstanceOverride) {}
func (Nop) FeedSyncCompleted(context.Context, models.FeedSyncResult)    {}
func (Nop) FeedSyncFailed(context.Context, string, string, error)       {}
