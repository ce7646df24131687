// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/api/handlers"
	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/calendar"
	"github.com/eventseries/backend/internal/events"
	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/series"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/websocket"
)

// Services holds everything the handlers depend on. Hub and Scheduler are
// optional; a nil Notifier discards notifications.
type Services struct {
	DB        *storage.DB
	Events    *storage.EventRepository
	Feeds     *storage.FeedRepository
	Resolver  *instance.Resolver
	Series    *series.Manager
	Hub       *websocket.Hub
	Scheduler *calendar.Scheduler
	Notifier  events.Notifier
	Log       zerolog.Logger
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	if s.Notifier == nil {
		s.Notifier = events.Nop{}
	}

	r := mux.NewRouter()

	r.Use(middleware.Logging(s.Log))
	r.Use(middleware.ErrorRecovery(s.Log))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Scheduler)).Methods("GET")

	// WebSocket endpoint
	if s.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, s.Log)).Methods("GET")
	}

	// Event endpoints
	api.HandleFunc("/events", handlers.ListEvents(s.Events)).Methods("GET")
	api.HandleFunc("/events", handlers.CreateEvent(s.Events)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(s.Events)).Methods("GET")
	api.HandleFunc("/events/{id}/cancel", handlers.CancelEvent(s.Series, s.Notifier)).Methods("POST")

	// Instance endpoints
	api.HandleFunc("/events/{id}/instances", handlers.ListInstances(s.Resolver)).Methods("GET")
	api.HandleFunc("/events/{id}/instances.ics", handlers.ExportInstances(s.Events, s.Resolver)).Methods("GET")
	api.HandleFunc("/events/{id}/instances/{instanceId}", handlers.OverrideInstance(s.Resolver, s.Notifier)).Methods("PUT")

	// Series endpoints
	api.HandleFunc("/series/{hash}/cancel", handlers.CancelSeries(s.Series, s.Notifier)).Methods("POST")

	// Feed endpoints
	api.HandleFunc("/feeds", handlers.ListFeeds(s.Feeds)).Methods("GET")
	api.HandleFunc("/feeds", handlers.CreateFeed(s.Feeds, s.Scheduler)).Methods("POST")
	api.HandleFunc("/feeds/{id}", handlers.DeleteFeed(s.Feeds, s.Scheduler)).Methods("DELETE")
	api.HandleFunc("/feeds/{id}/sync", handlers.SyncFeed(s.Feeds, s.Scheduler)).Methods("POST")

	return r
}
