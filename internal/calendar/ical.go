// Package calendar imports events from external iCalendar feeds and renders
// resolved instances back to iCalendar.
package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/storage/models"
)

const maxFeedSize = 10 << 20

// Parser fetches and parses iCalendar feeds.
type Parser struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// NewParser creates a new iCalendar parser.
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// Fetch downloads a feed body. Only http and https URLs are accepted.
func (p *Parser) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	parsed, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported feed scheme: %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	req.Header.Set("User-Agent", "eventseries/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	return body, nil
}

// FetchAndParse downloads and parses a feed.
func (p *Parser) FetchAndParse(ctx context.Context, feedURL string) ([]models.FeedEvent, error) {
	body, err := p.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return p.Parse(body)
}

// Parse reads every VEVENT of an iCalendar document. Components that cannot
// be read are logged and skipped; only a document that does not parse at
// all is an error.
func (p *Parser) Parse(body []byte) ([]models.FeedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty calendar body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var events []models.FeedEvent
	for _, ve := range cal.Events() {
		ev, err := p.parseVEvent(ve)
		if err != nil {
			p.log.Warn().Err(err).Str("uid", ev.UID).Msg("Skipping unreadable VEVENT")
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func (p *Parser) parseVEvent(ve *ical.VEvent) (models.FeedEvent, error) {
	var ev models.FeedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value

	if prop := ve.GetProperty(ical.ComponentPropertySummary); prop != nil {
		ev.Summary = prop.Value
	}
	if prop := ve.GetProperty(ical.ComponentPropertyDescription); prop != nil {
		ev.Description = prop.Value
	}
	if prop := ve.GetProperty(ical.ComponentPropertyStatus); prop != nil {
		ev.Canceled = strings.EqualFold(prop.Value, string(ical.ObjectStatusCancelled))
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("reading DTSTART: %w", err)
	}
	ev.Start = start
	ev.End = start
	if end, err := ve.GetEndAt(); err == nil {
		ev.End = end
	}
	if ev.End.Before(ev.Start) {
		return ev, fmt.Errorf("DTEND %s is before DTSTART %s", ev.End, ev.Start)
	}

	if prop := ve.GetProperty(ical.ComponentPropertyRecurrenceId); prop != nil {
		rid, err := propertyTime(prop)
		if err != nil {
			return ev, fmt.Errorf("reading RECURRENCE-ID: %w", err)
		}
		ev.RecurrenceID = &rid
		// An override never carries its own rule.
		return ev, nil
	}

	if prop := ve.GetProperty(ical.ComponentPropertyRrule); prop != nil && prop.Value != "" {
		ev.RawRule = prop.Value
		rule, err := parseRule(prop.Value)
		if err != nil {
			p.log.Info().Err(err).Str("uid", ev.UID).Str("rrule", prop.Value).Msg("Unsupported recurrence rule")
			return ev, nil
		}
		for _, exProp := range ve.GetProperties(ical.ComponentPropertyExdate) {
			dates, err := exdates(exProp)
			if err != nil {
				return ev, fmt.Errorf("reading EXDATE: %w", err)
			}
			rule.ExcludeDates = append(rule.ExcludeDates, dates...)
		}
		ev.Rule = &rule
	}

	return ev, nil
}

func parseRule(value string) (models.RecurrenceRule, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return models.RecurrenceRule{}, fmt.Errorf("%w: %v", recurrence.ErrInvalidRecurrenceRule, err)
	}
	return recurrence.FromROption(*opt)
}

func exdates(prop *ical.IANAProperty) ([]time.Time, error) {
	var out []time.Time
	for _, part := range strings.Split(prop.Value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := parseICSTime(part, tzid(prop))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func propertyTime(prop *ical.IANAProperty) (time.Time, error) {
	return parseICSTime(strings.TrimSpace(prop.Value), tzid(prop))
}

func tzid(prop *ical.IANAProperty) *time.Location {
	if tz, ok := prop.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return time.Local
}

// parseICSTime parses DATE and DATE-TIME values. Floating times are read in
// loc, matching how DTSTART is read.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
