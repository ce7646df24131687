package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/events"
	"github.com/eventseries/backend/internal/series"
)

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type CancelSeriesResponse struct {
	Success        bool   `json:"success"`
	RecurrenceHash string `json:"recurrence_hash"`
	Canceled       int    `json:"canceled"`
}

// CancelSeries cancels every active event sharing a recurrence hash.
func CancelSeries(manager *series.Manager, notifier events.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := mux.Vars(r)["hash"]

		var req CancelRequest
		if !decodeRequest(w, r, &req, true) {
			return
		}

		n, err := manager.CancelSeries(r.Context(), hash, req.Reason)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if n > 0 {
			notifier.SeriesCanceled(r.Context(), hash, n, req.Reason)
		}

		middleware.WriteJSON(w, http.StatusOK, CancelSeriesResponse{Success: true, RecurrenceHash: hash, Canceled: n})
	}
}

// CancelEvent cancels the series a recurring event belongs to.
func CancelEvent(manager *series.Manager, notifier events.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req CancelRequest
		if !decodeRequest(w, r, &req, true) {
			return
		}

		hash, n, err := manager.CancelEventSeries(r.Context(), id, req.Reason)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if n > 0 {
			notifier.SeriesCanceled(r.Context(), hash, n, req.Reason)
		}

		middleware.WriteJSON(w, http.StatusOK, CancelSeriesResponse{Success: true, RecurrenceHash: hash, Canceled: n})
	}
}
