// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"

	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/calendar"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		response := HealthResponse{Status: "healthy", DBConnected: dbConnected}
		status := http.StatusOK
		if !dbConnected {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		middleware.WriteJSON(w, status, response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	SingleEvents     int    `json:"single_events"`
	RecurringEvents  int    `json:"recurring_events"`
	CanceledEvents   int    `json:"canceled_events"`
	DistinctSeries   int    `json:"distinct_series"`
	Overrides        int    `json:"overrides"`
	FeedsCount       int    `json:"feeds_count"`
	ScheduledFeeds   int    `json:"scheduled_feeds"`
	WebSocketClients int    `json:"websocket_clients"`
	NextSyncAt       string `json:"next_sync_at,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var response StatusResponse
		err := db.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(kind = 'single'), 0),
				COALESCE(SUM(kind = 'recurring'), 0),
				COALESCE(SUM(is_canceled), 0),
				COUNT(DISTINCT recurrence_hash)
			FROM events
		`).Scan(&response.SingleEvents, &response.RecurringEvents, &response.CanceledEvents, &response.DistinctSeries)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instance_overrides").Scan(&response.Overrides)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_subscriptions").Scan(&response.FeedsCount)

		if hub != nil {
			response.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			feeds := scheduler.ScheduledFeeds()
			response.ScheduledFeeds = len(feeds)
			for _, id := range feeds {
				next := scheduler.NextRun(id)
				if next == nil {
					continue
				}
				if s := next.UTC().Format("2006-01-02T15:04:05Z"); response.NextSyncAt == "" || s < response.NextSyncAt {
					response.NextSyncAt = s
				}
			}
		}

		middleware.WriteJSON(w, http.StatusOK, response)
	}
}
