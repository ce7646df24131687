package websocket_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventseries/backend/internal/storage/models"
	"github.com/eventseries/backend/internal/websocket"
)

func runHub(t *testing.T) *websocket.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := websocket.NewHub(zerolog.Nop())
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *websocket.Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.Send():
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func assertSilent(t *testing.T, c *websocket.Client) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("unexpected message %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDeliversToSubscribedTopics(t *testing.T) {
	hub := runHub(t)

	all := websocket.NewClient(hub)
	one := websocket.NewClient(hub)
	one.Subscribe("evt-1")
	hub.Register(all)
	hub.Register(one)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("evt-2", []byte(`{"type":"x"}`))
	assert.Equal(t, "x", receive(t, all)["type"])
	assertSilent(t, one)

	hub.Broadcast("evt-1", []byte(`{"type":"y"}`))
	assert.Equal(t, "y", receive(t, all)["type"])
	assert.Equal(t, "y", receive(t, one)["type"])

	one.Unsubscribe("evt-1")
	hub.Broadcast("evt-2", []byte(`{"type":"z"}`))
	assert.Equal(t, "z", receive(t, one)["type"])
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := runHub(t)
	c := websocket.NewClient(hub)
	hub.Register(c)
	hub.Unregister(c)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Send():
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestBroadcasterMessages(t *testing.T) {
	hub := runHub(t)
	c := websocket.NewClient(hub)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	b := websocket.NewEventBroadcaster(hub, zerolog.Nop())
	ctx := context.Background()

	b.SeriesCanceled(ctx, "abc", 3, "venue closed")
	msg := receive(t, c)
	assert.Equal(t, string(websocket.TypeSeriesCanceled), msg["type"])
	payload := msg["payload"].(map[string]any)
	assert.Equal(t, "abc", payload["recurrence_hash"])
	assert.EqualValues(t, 3, payload["canceled"])

	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	b.InstanceOverridden(ctx, models.InstanceOverride{
		InstanceID:    "evt-1_20250106T090000Z",
		ParentEventID: "evt-1",
		Start:         start,
		End:           start.Add(time.Hour),
		IsCanceled:    true,
	})
	msg = receive(t, c)
	assert.Equal(t, string(websocket.TypeInstanceOverridden), msg["type"])
	payload = msg["payload"].(map[string]any)
	assert.Equal(t, "evt-1_20250106T090000Z", payload["instance_id"])
	assert.Equal(t, true, payload["is_canceled"])

	b.FeedSyncCompleted(ctx, models.FeedSyncResult{FeedID: "feed-1", FeedName: "Club", EventsCreated: 2})
	msg = receive(t, c)
	assert.Equal(t, string(websocket.TypeFeedSyncCompleted), msg["type"])
	assert.Equal(t, models.SyncStatusSuccess, msg["payload"].(map[string]any)["status"])

	b.FeedSyncFailed(ctx, "feed-1", "Club", errors.New("boom"))
	msg = receive(t, c)
	assert.Equal(t, string(websocket.TypeFeedSyncError), msg["type"])
	assert.Equal(t, "boom", msg["payload"].(map[string]any)["message"])

	b.BroadcastNotification("info", "Hello", "World")
	msg = receive(t, c)
	assert.Equal(t, string(websocket.TypeNotification), msg["type"])
}
