package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSeriesCanceled     MessageType = "series.canceled"
	TypeInstanceOverridden MessageType = "instance.overridden"
	TypeFeedSyncCompleted  MessageType = "feed.sync_completed"
	TypeFeedSyncError      MessageType = "feed.sync_error"
	TypeNotification       MessageType = "notification"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypeSubscribeAck MessageType = "subscribe.ack"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

// Message is the envelope of every WebSocket message in both directions.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a client message. Payload is decoded according to Type.
type Command struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of subscribe and unsubscribe commands.
type SubscribePayload struct {
	Topics []string `json:"topics"`
}

// SeriesCanceledPayload is the payload for series.canceled events.
type SeriesCanceledPayload struct {
	RecurrenceHash string `json:"recurrence_hash"`
	Canceled       int    `json:"canceled"`
	Reason         string `json:"reason,omitempty"`
}

// InstanceOverriddenPayload is the payload for instance.overridden events.
type InstanceOverriddenPayload struct {
	EventID    string    `json:"event_id"`
	InstanceID string    `json:"instance_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	IsCanceled bool      `json:"is_canceled"`
}

// FeedSyncPayload is the payload for feed.sync_completed events.
type FeedSyncPayload struct {
	FeedID           string `json:"feed_id"`
	FeedName         string `json:"feed_name"`
	Status           string `json:"status"`
	EventsFound      int    `json:"events_found"`
	EventsCreated    int    `json:"events_created"`
	EventsUpdated    int    `json:"events_updated"`
	EventsSkipped    int    `json:"events_skipped"`
	OverridesApplied int    `json:"overrides_applied"`
}

// FeedSyncErrorPayload is the payload for feed.sync_error events.
type FeedSyncErrorPayload struct {
	FeedID   string `json:"feed_id"`
	FeedName string `json:"feed_name"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
