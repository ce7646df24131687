package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventseries/backend/internal/api"
	"github.com/eventseries/backend/internal/api/middleware"
	"github.com/eventseries/backend/internal/events"
	"github.com/eventseries/backend/internal/instance"
	"github.com/eventseries/backend/internal/series"
	"github.com/eventseries/backend/internal/storage"
	"github.com/eventseries/backend/internal/storage/models"
)

type recordingNotifier struct {
	events.Nop
	mu        sync.Mutex
	canceled  []string
	overrides []models.InstanceOverride
}

func (n *recordingNotifier) SeriesCanceled(_ context.Context, hash string, _ int, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, hash)
}

func (n *recordingNotifier) InstanceOverridden(_ context.Context, o models.InstanceOverride) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.overrides = append(n.overrides, o)
}

type apiFixture struct {
	server   *httptest.Server
	notifier *recordingNotifier
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db, zerolog.Nop()))

	eventRepo := storage.NewEventRepository(db)
	overrideRepo := storage.NewOverrideRepository(db)
	notifier := &recordingNotifier{}

	router := api.NewRouter(api.Services{
		DB:       db,
		Events:   eventRepo,
		Feeds:    storage.NewFeedRepository(db),
		Resolver: instance.NewResolver(eventRepo, overrideRepo, instance.Config{}, zerolog.Nop()),
		Series:   series.NewManager(eventRepo, zerolog.Nop()),
		Notifier: notifier,
		Log:      zerolog.Nop(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, notifier: notifier}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func quizNight() map[string]any {
	return map[string]any{
		"id":       "quiz",
		"venue_id": "venue-1",
		"title":    "Quiz night",
		"start":    "2025-01-06T18:00:00Z",
		"end":      "2025-01-06T20:00:00Z",
		"recurrence": map[string]any{
			"frequency":  "weekly",
			"by_weekday": []string{"MO", "WE"},
			"count":      6,
		},
	}
}

func createQuiz(t *testing.T, f *apiFixture) models.RecurringEvent {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/events", quizNight())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[models.RecurringEvent](t, resp)
}

func TestCreateAndResolveSeries(t *testing.T) {
	f := newAPIFixture(t)

	quiz := createQuiz(t, f)
	assert.Equal(t, "quiz", quiz.ID)
	assert.Len(t, quiz.Public.RecurrenceHash, 64)

	resp := f.do(t, http.MethodGet, "/api/events/quiz/instances?offset_start=1&offset_end=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeBody[instance.Page](t, resp)

	assert.Equal(t, 6, page.TotalCount)
	assert.Equal(t, 1, page.ActualStart)
	assert.Equal(t, 3, page.ActualEnd)
	require.Len(t, page.Instances, 3)
	assert.Equal(t, "quiz_20250108T180000Z", page.Instances[0].InstanceID)
	assert.Equal(t, 2*time.Hour, page.Instances[0].End.Sub(page.Instances[0].Start))

	resp = f.do(t, http.MethodPost, "/api/events", quizNight())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOverrideInstance(t *testing.T) {
	f := newAPIFixture(t)
	createQuiz(t, f)

	resp := f.do(t, http.MethodPut, "/api/events/quiz/instances/quiz_20250108T180000Z", map[string]any{"canceled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, true, body["success"])
	require.Len(t, f.notifier.overrides, 1)
	assert.True(t, f.notifier.overrides[0].IsCanceled)

	page := decodeBody[instance.Page](t, f.do(t, http.MethodGet, "/api/events/quiz/instances?offset_end=1", nil))
	require.Len(t, page.Instances, 2)
	assert.False(t, page.Instances[0].IsOverridden)
	assert.True(t, page.Instances[1].IsOverridden)
	assert.True(t, page.Instances[1].IsCanceled)

	resp = f.do(t, http.MethodGet, "/api/events/quiz/instances.ics?offset_end=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	ics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(ics), "BEGIN:VCALENDAR")
	assert.Contains(t, string(ics), "STATUS:CANCELLED")
}

func TestOverrideRejections(t *testing.T) {
	f := newAPIFixture(t)
	createQuiz(t, f)

	resp := f.do(t, http.MethodPost, "/api/events", map[string]any{
		"id": "gala", "venue_id": "venue-1", "title": "Gala",
		"start": "2025-02-01T19:00:00Z", "end": "2025-02-01T23:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"empty body", "/api/events/quiz/instances/quiz_20250108T180000Z", map[string]any{}, http.StatusBadRequest},
		{"foreign instance", "/api/events/quiz/instances/other_20250108T180000Z", map[string]any{"canceled": true}, http.StatusBadRequest},
		{"end before start", "/api/events/quiz/instances/quiz_20250108T180000Z", map[string]any{
			"start": "2025-01-08T18:00:00Z", "end": "2025-01-08T17:00:00Z",
		}, http.StatusBadRequest},
		{"single event", "/api/events/gala/instances/gala_20250201T190000Z", map[string]any{"canceled": true}, http.StatusConflict},
		{"unknown event", "/api/events/nope/instances/nope_20250201T190000Z", map[string]any{"canceled": true}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Empty(t, f.notifier.overrides)
}

func TestCancelSeriesByHash(t *testing.T) {
	f := newAPIFixture(t)
	quiz := createQuiz(t, f)

	resp := f.do(t, http.MethodPost, "/api/series/"+quiz.Public.RecurrenceHash+"/cancel", map[string]any{"reason": "venue closed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.EqualValues(t, 1, body["canceled"])
	assert.Equal(t, []string{quiz.Public.RecurrenceHash}, f.notifier.canceled)

	// Repeating the cancellation touches nothing and notifies nobody.
	resp = f.do(t, http.MethodPost, "/api/series/"+quiz.Public.RecurrenceHash+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, decodeBody[map[string]any](t, resp)["canceled"])
	assert.Len(t, f.notifier.canceled, 1)

	page := decodeBody[instance.Page](t, f.do(t, http.MethodGet, "/api/events/quiz/instances", nil))
	require.Len(t, page.Instances, 6)
	for _, in := range page.Instances {
		assert.True(t, in.IsCanceled)
	}

	resp = f.do(t, http.MethodPut, "/api/events/quiz/instances/quiz_20250108T180000Z", map[string]any{"canceled": false})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelEventSeries(t *testing.T) {
	f := newAPIFixture(t)
	quiz := createQuiz(t, f)

	resp := f.do(t, http.MethodPost, "/api/events/quiz/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, quiz.Public.RecurrenceHash, body["recurrence_hash"])

	resp = f.do(t, http.MethodPost, "/api/events/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateEventValidation(t *testing.T) {
	f := newAPIFixture(t)

	missingTitle := quizNight()
	delete(missingTitle, "title")
	resp := f.do(t, http.MethodPost, "/api/events", missingTitle)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[middleware.ErrorResponse](t, resp)
	assert.Equal(t, middleware.ErrValidation, body.Error)
	assert.Contains(t, body.Details.([]any)[0].(map[string]any)["field"], "title")

	badDay := quizNight()
	badDay["recurrence"].(map[string]any)["by_weekday"] = []string{"XX"}
	resp = f.do(t, http.MethodPost, "/api/events", badDay)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	monthlyWeekdays := quizNight()
	monthlyWeekdays["recurrence"].(map[string]any)["frequency"] = "monthly"
	resp = f.do(t, http.MethodPost, "/api/events", monthlyWeekdays)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, middleware.ErrInvalidRule, decodeBody[middleware.ErrorResponse](t, resp).Error)
}

func TestInstanceQueryErrors(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/events/missing/instances", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	createQuiz(t, f)
	resp = f.do(t, http.MethodGet, "/api/events/quiz/instances?offset_start=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// An inverted window clamps to the end of the series.
	page := decodeBody[instance.Page](t, f.do(t, http.MethodGet, "/api/events/quiz/instances?offset_start=4&offset_end=1", nil))
	assert.Len(t, page.Instances, 2)
	assert.Equal(t, 5, page.ActualEnd)
}

func TestListEventsAndHealth(t *testing.T) {
	f := newAPIFixture(t)
	createQuiz(t, f)

	resp := f.do(t, http.MethodGet, "/api/events?venue_id=venue-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summaries := decodeBody[[]models.EventSummary](t, resp)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.EventKindRecurring, summaries[0].Kind)

	assert.Empty(t, decodeBody[[]models.EventSummary](t, f.do(t, http.MethodGet, "/api/events?venue_id=other", nil)))

	resp = f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[map[string]any](t, resp)
	assert.EqualValues(t, 1, status["recurring_events"])
	assert.EqualValues(t, 1, status["distinct_series"])
}

func TestFeedEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/feeds", map[string]any{"name": "Club", "url": "not a url", "venue_id": "venue-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/feeds", map[string]any{"name": "Club", "url": "https://example.com/club.ics", "venue_id": "venue-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	feed := decodeBody[models.FeedSubscription](t, resp)
	assert.True(t, feed.Enabled)
	assert.Equal(t, models.SyncStatusPending, feed.SyncStatus)

	feeds := decodeBody[[]models.FeedSubscription](t, f.do(t, http.MethodGet, "/api/feeds", nil))
	assert.Len(t, feeds, 1)

	// No scheduler is wired in this fixture.
	resp = f.do(t, http.MethodPost, "/api/feeds/"+feed.ID+"/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/feeds/"+feed.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/feeds/"+feed.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/feeds/"+feed.ID+"/sync", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
