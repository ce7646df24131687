package handlers

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/calendar"
	"github.com/eventseries/backend/internal/events"
	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/storage/models"
)

// DefaultPageSize is the window returned when offset_end is omitted.
const DefaultPageSize = 50

// parseOffsets reads offset_start and offset_end. Both are optional and must
// be non-negative integers when present.
func parseOffsets(q url.Values) (uint, uint, error) {
	start, err := parseOffset(q, "offset_start", 0)
	if err != nil {
		return 0, 0, err
	}
	def := uint(math.MaxUint)
	if start <= math.MaxUint-(DefaultPageSize-1) {
		def = start + DefaultPageSize - 1
	}
	end, err := parseOffset(q, "offset_end", def)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseOffset(q url.Values, key string, def uint) (uint, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return uint(n), nil
}

// ListInstances returns a window of the resolved instances of an event.
func ListInstances(resolver *instance.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := parseOffsets(r.URL.Query())
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}

		page, err := resolver.ResolveInstances(r.Context(), mux.Vars(r)["id"], start, end)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, page)
	}
}

// ExportInstances returns a window of resolved instances as an iCalendar document.
func ExportInstances(eventRepo *storage.EventRepository, resolver *instance.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		start, end, err := parseOffsets(r.URL.Query())
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}

		rec, err := eventRepo.GetByID(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if rec == nil {
			writeDomainError(w, r, instance.ErrEventNotFound)
			return
		}
		summary, ok := models.Summarize(rec)
		if !ok {
			writeDomainError(w, r, fmt.Errorf("unsupported event record %T", rec))
			return
		}

		page, err := resolver.ResolveInstances(r.Context(), id, start, end)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, id))
		w.Write([]byte(calendar.ExportInstances(summary, page.Instances, time.Now())))
	}
}

type OverrideInstanceRequest struct {
	Start    *time.Time `json:"start" validate:"required_without_all=End Canceled"`
	End      *time.Time `json:"end"`
	Canceled *bool      `json:"canceled"`
}

type OverrideInstanceResponse struct {
	Success  bool                    `json:"success"`
	Override models.InstanceOverride `json:"override"`
}

// OverrideInstance moves, resizes, cancels or restores one instance of a series.
func OverrideInstance(resolver *instance.Resolver, notifier events.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		var req OverrideInstanceRequest
		if !decodeRequest(w, r, &req, false) {
			return
		}

		override, err := resolver.OverrideInstance(r.Context(), instance.OverrideRequest{
			EventID:    vars["id"],
			InstanceID: vars["instanceId"],
			NewStart:   req.Start,
			NewEnd:     req.End,
			Cancel:     req.Canceled,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		notifier.InstanceOverridden(r.Context(), override)

		middleware.WriteJSON(w, http.StatusOK, OverrideInstanceResponse{Success: true, Override: override})
	}
}
