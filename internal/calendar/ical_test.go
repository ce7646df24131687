package calendar_test

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventseries/backend/internal/calendar"
	"github.com/eventseries/backend/internal/storage/models"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	body, err := os.ReadFile("testdata/club.ics")
	require.NoError(t, err)
	return body
}

func byUID(events []models.FeedEvent, uid string, override bool) *models.FeedEvent {
	for i := range events {
		if events[i].UID == uid && (events[i].RecurrenceID != nil) == override {
			return &events[i]
		}
	}
	return nil
}

func TestParseFeed(t *testing.T) {
	events, err := calendar.NewParser(zerolog.Nop()).Parse(readFixture(t))
	require.NoError(t, err)

	// The VEVENT without a UID is dropped.
	assert.Len(t, events, 5)

	quiz := byUID(events, "quiz-night", false)
	require.NotNil(t, quiz)
	assert.Equal(t, "Quiz night", quiz.Summary)
	assert.Equal(t, "Teams of four", quiz.Description)
	assert.True(t, quiz.Start.Equal(time.Date(2025, 1, 6, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2*time.Hour, quiz.End.Sub(quiz.Start))
	require.NotNil(t, quiz.Rule)
	assert.Equal(t, models.FrequencyWeekly, quiz.Rule.Frequency)
	assert.Equal(t, 6, quiz.Rule.Count)
	assert.ElementsMatch(t, []time.Weekday{time.Monday, time.Wednesday}, quiz.Rule.ByWeekday)
	require.Len(t, quiz.Rule.ExcludeDates, 1)
	assert.True(t, quiz.Rule.ExcludeDates[0].Equal(time.Date(2025, 1, 8, 18, 0, 0, 0, time.UTC)))

	gala := byUID(events, "gala", false)
	require.NotNil(t, gala)
	assert.Nil(t, gala.Rule)
	assert.Empty(t, gala.RawRule)

	market := byUID(events, "market", false)
	require.NotNil(t, market)
	assert.Nil(t, market.Rule)
	assert.Equal(t, "FREQ=MONTHLY;BYMONTHDAY=10,20", market.RawRule)
}

func TestParseFeedOverrides(t *testing.T) {
	events, err := calendar.NewParser(zerolog.Nop()).Parse(readFixture(t))
	require.NoError(t, err)

	var overrides []models.FeedEvent
	for _, e := range events {
		if e.RecurrenceID != nil {
			overrides = append(overrides, e)
		}
	}
	require.Len(t, overrides, 2)

	assert.True(t, overrides[0].RecurrenceID.Equal(time.Date(2025, 1, 13, 18, 0, 0, 0, time.UTC)))
	assert.True(t, overrides[0].Start.Equal(time.Date(2025, 1, 13, 19, 0, 0, 0, time.UTC)))
	assert.False(t, overrides[0].Canceled)
	assert.Nil(t, overrides[0].Rule)

	assert.True(t, overrides[1].Canceled)
}

func TestParseRejectsEmptyBody(t *testing.T) {
	_, err := calendar.NewParser(zerolog.Nop()).Parse([]byte("  \n"))

	assert.Error(t, err)
}
