package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/series"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/storage/models"
)

// Event request/response types

type RuleRequest struct {
	Frequency    string     `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Interval     int        `json:"interval" validate:"omitempty,min=1"`
	ByWeekday    []string   `json:"by_weekday" validate:"omitempty,dive,oneof=MO TU WE TH FR SA SU"`
	Count        int        `json:"count" validate:"omitempty,min=1"`
	RepeatUntil  *time.Time `json:"repeat_until"`
	ExcludeDates []string   `json:"exclude_dates" validate:"omitempty,dive,datetime=2006-01-02"`
}

type CreateEventRequest struct {
	ID         string       `json:"id" validate:"omitempty,max=128"`
	VenueID    string       `json:"venue_id" validate:"required,max=128"`
	Title      string       `json:"title" validate:"required,max=200"`
	Notes      string       `json:"notes" validate:"max=2000"`
	Start      time.Time    `json:"start" validate:"required"`
	End        time.Time    `json:"end" validate:"required,gtefield=Start"`
	Recurrence *RuleRequest `json:"recurrence"`
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// rule converts a validated request into a recurrence rule. Exclusion dates
// are calendar dates in the location of the series start.
func (req RuleRequest) rule(loc *time.Location) models.RecurrenceRule {
	rule := models.RecurrenceRule{
		Frequency:   models.Frequency(req.Frequency),
		Interval:    req.Interval,
		Count:       req.Count,
		RepeatUntil: req.RepeatUntil,
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	for _, code := range req.ByWeekday {
		rule.ByWeekday = append(rule.ByWeekday, weekdayCodes[code])
	}
	for _, d := range req.ExcludeDates {
		if t, err := time.ParseInLocation(time.DateOnly, d, loc); err == nil {
			rule.ExcludeDates = append(rule.ExcludeDates, t)
		}
	}
	return rule
}

// ListEvents returns summaries of all events, optionally filtered by venue.
func ListEvents(events *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		venue := r.URL.Query().Get("venue_id")

		summaries := []models.EventSummary{}
		for rec, err := range events.StreamAll(r.Context()) {
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			if venue != "" && rec.VenueID() != venue {
				continue
			}
			if s, ok := models.Summarize(rec); ok {
				summaries = append(summaries, s)
			}
		}

		middleware.WriteJSON(w, http.StatusOK, summaries)
	}
}

// CreateEvent creates a single event, or a recurring series when the request
// carries a recurrence rule.
func CreateEvent(events *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest
		if !decodeRequest(w, r, &req, false) {
			return
		}

		if req.ID != "" {
			existing, err := events.GetByID(r.Context(), req.ID)
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			if existing != nil {
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Event already exists")
				return
			}
		}

		now := time.Now()
		var rec models.EventRecord
		if req.Recurrence != nil {
			e, err := series.NewRecurringEvent(series.RecurringParams{
				ID:            req.ID,
				VenueID:       req.VenueID,
				Title:         req.Title,
				Notes:         req.Notes,
				TemplateStart: req.Start,
				TemplateEnd:   req.End,
				Rule:          req.Recurrence.rule(req.Start.Location()),
			}, now)
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			rec = e
		} else {
			e, err := series.NewSingleEvent(series.SingleParams{
				ID:      req.ID,
				VenueID: req.VenueID,
				Title:   req.Title,
				Notes:   req.Notes,
				Start:   req.Start,
				End:     req.End,
			}, now)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
				return
			}
			rec = e
		}

		if err := events.Save(r.Context(), rec); err != nil {
			writeDomainError(w, r, err)
			return
		}

		middleware.WriteJSON(w, http.StatusCreated, rec)
	}
}

// GetEvent returns a single event by ID.
func GetEvent(events *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		rec, err := events.GetByID(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if rec == nil {
			writeDomainError(w, r, instance.ErrEventNotFound)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, rec)
	}
}
