package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/calendar"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/storage/models"
)

// Feed request/response types

type CreateFeedRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	URL             string `json:"url" validate:"required,url"`
	VenueID         string `json:"venue_id" validate:"required,max=128"`
	SyncIntervalMin int    `json:"sync_interval_min" validate:"omitempty,min=1,max=1440"`
	Enabled         *bool  `json:"enabled"`
}

// ListFeeds returns all feed subscriptions.
func ListFeeds(feeds *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := feeds.List(r.Context())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if list == nil {
			list = []models.FeedSubscription{}
		}

		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// CreateFeed adds a new feed subscription and schedules it when enabled.
func CreateFeed(feeds *storage.FeedRepository, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateFeedRequest
		if !decodeRequest(w, r, &req, false) {
			return
		}

		feed := models.FeedSubscription{
			Name:            req.Name,
			URL:             req.URL,
			VenueID:         req.VenueID,
			SyncIntervalMin: req.SyncIntervalMin,
			Enabled:         req.Enabled == nil || *req.Enabled,
		}
		if err := feeds.Create(r.Context(), &feed); err != nil {
			writeDomainError(w, r, err)
			return
		}

		if scheduler != nil && feed.Enabled {
			scheduler.ScheduleFeed(feed)
			scheduler.TriggerSync(feed.ID)
		}

		middleware.WriteJSON(w, http.StatusCreated, feed)
	}
}

// DeleteFeed removes a feed subscription. Events already imported are kept.
func DeleteFeed(feeds *storage.FeedRepository, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := feeds.Delete(r.Context(), id); err != nil {
			writeDomainError(w, r, err)
			return
		}

		if scheduler != nil {
			scheduler.UnscheduleFeed(id)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncFeed triggers a manual sync for a feed. The result is delivered as a
// notification once the sync finishes.
func SyncFeed(feeds *storage.FeedRepository, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		feed, err := feeds.GetByID(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if feed == nil {
			writeDomainError(w, r, storage.ErrFeedNotFound)
			return
		}
		if scheduler == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrInternalError, "Feed sync is not available")
			return
		}

		scheduler.TriggerSync(feed.ID)

		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": models.SyncStatusSyncing})
	}
}
