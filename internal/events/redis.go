package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/storage/models"
)

// Envelope types published on the Redis channel.
const (
	TypeSeriesCanceled     = "series_canceled"
	TypeInstanceOverridden = "instance_overridden"
	TypeFeedSynced         = "feed_synced"
	TypeFeedSyncFailed     = "feed_sync_failed"
)

// Envelope is the JSON document published for every notification.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher is the part of *redis.Client the publisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Dial connects to the Redis server at url and verifies the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// RedisPublisher publishes notifications as JSON envelopes on a Redis channel.
type RedisPublisher struct {
	client  Publisher
	channel string
	now     func() time.Time
	log     zerolog.Logger
}

// NewRedisPublisher creates a publisher for channel.
func NewRedisPublisher(client Publisher, channel string, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		now:     time.Now,
		log:     log.With().Str("component", "redis_publisher").Str("channel", channel).Logger(),
	}
}

func (p *RedisPublisher) SeriesCanceled(ctx context.Context, hash string, canceled int, reason string) {
	p.publish(ctx, TypeSeriesCanceled, map[string]any{
		"recurrence_hash": hash,
		"canceled":        canceled,
		"reason":          reason,
	})
}

func (p *RedisPublisher) InstanceOverridden(ctx context.Context, o models.InstanceOverride) {
	p.publish(ctx, TypeInstanceOverridden, o)
}

func (p *RedisPublisher) FeedSyncCompleted(ctx context.Context, result models.FeedSyncResult) {
	p.publish(ctx, TypeFeedSynced, result)
}

func (p *RedisPublisher) FeedSyncFailed(ctx context.Context, feedID, feedName string, err error) {
	p.publish(ctx, TypeFeedSyncFailed, map[string]any{
		"feed_id":   feedID,
		"feed_name": feedName,
		"error":     err.Error(),
	})
}

// Publish sends one envelope and reports the outcome.
func (p *RedisPublisher) Publish(ctx context.Context, kind string, data any) error {
	payload, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       kind,
		OccurredAt: p.now().UTC(),
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("marshaling %s envelope: %w", kind, err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing %s: %w", kind, err)
	}
	return nil
}

func (p *RedisPublisher) publish(ctx context.Context, kind string, data any) {
	if err := p.Publish(ctx, kind, data); err != nil {
		p.log.Error().Err(err).Str("type", kind).Msg("Failed to publish notification")
		return
	}
	p.log.Debug().Str("type", kind).Msg("Published notification")
}
