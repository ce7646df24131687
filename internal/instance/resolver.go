package instance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventseries/backend/internal/recurrence"
	"github.com/eventseries/backend/internal/storage/models"
)

var (
	// ErrEventNotFound is returned when no event exists for an ID.
	ErrEventNotFound = errors.New("event not found")
	// ErrNotRecurring is returned when a series operation targets a single event.
	ErrNotRecurring = errors.New("event is not recurring")
	// ErrSeriesCanceled is returned when overriding an instance of a canceled series.
	ErrSeriesCanceled = errors.New("series is canceled")
	// ErrInvalidOverride is returned for overrides that cannot apply to the series.
	ErrInvalidOverride = errors.New("invalid instance override")
)

// EventReader loads event records. GetByID returns a nil record and no error
// when the event does not exist.
type EventReader interface {
	GetByID(ctx context.Context, id string) (models.EventRecord, error)
}

// OverrideStore persists instance overrides. Create inserts the override or
// replaces the one stored under the same instance ID.
type OverrideStore interface {
	GetByEventID(ctx context.Context, eventID string) ([]models.InstanceOverride, error)
	Create(ctx context.Context, override *models.InstanceOverride) error
}

// Config bounds the expansion of a series.
type Config struct {
	// Horizon limits how far past now an open-ended series is expanded.
	Horizon time.Duration
	// MaxOccurrences caps every expansion.
	MaxOccurrences int
}

// Resolver turns persisted events and overrides into instance pages.
type Resolver struct {
	events    EventReader
	overrides OverrideStore
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// NewResolver creates a new instance resolver.
func NewResolver(events EventReader, overrides OverrideStore, cfg Config, log zerolog.Logger) *Resolver {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 365 * 24 * time.Hour
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = recurrence.DefaultMaxOccurrences
	}
	return &Resolver{
		events:    events,
		overrides: overrides,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("component", "resolver").Logger(),
	}
}

// WithClock replaces the resolver's time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// ResolveInstances returns the [offsetStart, offsetEnd] window of the sorted,
// override-aware instances of an event.
func (r *Resolver) ResolveInstances(ctx context.Context, eventID string, offsetStart, offsetEnd uint) (Page, error) {
	rec, err := r.load(ctx, eventID)
	if err != nil {
		return Page{}, err
	}

	instances, err := r.Instances(ctx, rec)
	if err != nil {
		return Page{}, err
	}

	return Paginate(instances, toOffset(offsetStart), toOffset(offsetEnd)), nil
}

// Instances returns every resolvable instance of rec. A single event is a
// series of one instance.
func (r *Resolver) Instances(ctx context.Context, rec models.EventRecord) (iter.Seq[models.EventInstance], error) {
	switch e := rec.(type) {
	case models.SingleEvent:
		return slices.Values([]models.EventInstance{{
			InstanceID:    recurrence.InstanceID(e.ID, e.Public.Start),
			ParentEventID: e.ID,
			Start:         e.Public.Start,
			End:           e.Public.End,
			IsCanceled:    e.Public.IsCanceled,
		}}), nil

	case models.RecurringEvent:
		window := recurrence.Window{MaxOccurrences: r.cfg.MaxOccurrences}
		if e.Public.Rule.IsOpenEnded() {
			from := r.now()
			if e.Public.TemplateStart.After(from) {
				from = e.Public.TemplateStart
			}
			window.Until = from.Add(r.cfg.Horizon)
		}

		generated, err := recurrence.Generate(e.ID, e.Public.Rule, e.Public.TemplateStart, e.Public.TemplateEnd, window)
		if err != nil {
			return nil, fmt.Errorf("expanding event %s: %w", e.ID, err)
		}

		overrides, err := r.overrides.GetByEventID(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
		index, dropped := IndexOverrides(e.ID, overrides)
		if dropped > 0 {
			r.log.Warn().Str("event_id", e.ID).Int("dropped", dropped).Msg("Ignoring malformed instance overrides")
		}

		merged := Merge(generated, index)
		if e.Public.IsCanceled {
			merged = canceled(merged)
		}
		return merged, nil

	default:
		return nil, fmt.Errorf("unsupported event record %T", rec)
	}
}

// OverrideRequest describes a correction to one occurrence. Nil fields keep
// their current value.
type OverrideRequest struct {
	EventID    string
	InstanceID string
	NewStart   *time.Time
	NewEnd     *time.Time
	Cancel     *bool
}

// OverrideInstance stores an override for one instance of a recurring event.
// The instance does not have to fall inside any particular window; the
// override applies whenever a resolution generates that instance.
func (r *Resolver) OverrideInstance(ctx context.Context, req OverrideRequest) (models.InstanceOverride, error) {
	rec, err := r.load(ctx, req.EventID)
	if err != nil {
		return models.InstanceOverride{}, err
	}

	var series models.RecurringEvent
	switch e := rec.(type) {
	case models.SingleEvent:
		return models.InstanceOverride{}, fmt.Errorf("%w: %s", ErrNotRecurring, e.ID)
	case models.RecurringEvent:
		series = e
	default:
		return models.InstanceOverride{}, fmt.Errorf("unsupported event record %T", rec)
	}

	if series.Public.IsCanceled {
		return models.InstanceOverride{}, fmt.Errorf("%w: %s", ErrSeriesCanceled, series.ID)
	}

	originalStart, ok := recurrence.ParseInstanceID(series.ID, req.InstanceID)
	if !ok {
		return models.InstanceOverride{}, fmt.Errorf("%w: instance %q does not belong to event %s",
			ErrInvalidOverride, req.InstanceID, series.ID)
	}

	override := models.InstanceOverride{
		InstanceID:    req.InstanceID,
		ParentEventID: series.ID,
		Start:         originalStart,
		End:           originalStart.Add(series.Duration()),
	}

	existing, err := r.overrides.GetByEventID(ctx, series.ID)
	if err != nil {
		return models.InstanceOverride{}, fmt.Errorf("loading overrides: %w", err)
	}
	index, _ := IndexOverrides(series.ID, existing)
	if prev, ok := index[req.InstanceID]; ok {
		override = prev
	}

	if req.NewStart != nil {
		duration := override.End.Sub(override.Start)
		override.Start = *req.NewStart
		if req.NewEnd == nil {
			override.End = override.Start.Add(duration)
		}
	}
	if req.NewEnd != nil {
		override.End = *req.NewEnd
	}
	if req.Cancel != nil {
		override.IsCanceled = *req.Cancel
	}
	override.Start = override.Start.UTC()
	override.End = override.End.UTC()

	if override.End.Before(override.Start) {
		return models.InstanceOverride{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidOverride,
			override.End.Format(time.RFC3339), override.Start.Format(time.RFC3339))
	}

	if err := r.overrides.Create(ctx, &override); err != nil {
		return models.InstanceOverride{}, fmt.Errorf("saving override: %w", err)
	}

	r.log.Info().
		Str("event_id", series.ID).
		Str("instance_id", override.InstanceID).
		Bool("canceled", override.IsCanceled).
		Msg("Instance override saved")

	return override, nil
}

func (r *Resolver) load(ctx context.Context, eventID string) (models.EventRecord, error) {
	rec, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return rec, nil
}

// canceled marks every instance of a canceled series as canceled.
func canceled(instances iter.Seq[models.EventInstance]) iter.Seq[models.EventInstance] {
	return func(yield func(models.EventInstance) bool) {
		for in := range instances {
			in.IsCanceled = true
			if !yield(in) {
				return
			}
		}
	}
}

func toOffset(v uint) int {
	if uint64(v) > math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}
