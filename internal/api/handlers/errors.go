package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/series"
	"github.com/eventseries/backend/internal/storage"
)

// writeDomainError maps service errors onto API error responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, instance.ErrEventNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
	case errors.Is(err, storage.ErrFeedNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
	case errors.Is(err, instance.ErrNotRecurring), errors.Is(err, instance.ErrSeriesCanceled):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case errors.Is(err, instance.ErrInvalidOverride):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	case errors.Is(err, recurrence.ErrInvalidRecurrenceRule):
		middleware.WriteError(w, http.StatusUnprocessableEntity, middleware.ErrInvalidRule, err.Error())
	case errors.Is(err, series.ErrCancelSeriesFailed):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Series cancellation failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrCancelFailed, "Failed to cancel series")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "An unexpected error occurred")
	}
}
