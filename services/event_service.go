package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"eventsapi/models"
)

// EventCachePurger drops cached event responses after a write.
type EventCachePurger interface {
	PurgeEventsList(ctx context.Context)
	PurgeEventItem(ctx context.Context, id string)
}

// EventService wraps the event store: it validates input, stamps lastUpdated on
// every write and answers the read-side queries.
type EventService struct {
	events models.EventRepository
	subs   models.SubscriptionRepository
	purger EventCachePurger
	log    *zap.Logger
	now    func() time.Time
}

type EventOption func(*EventService)

func WithEventClock(now func() time.Time) EventOption {
	return func(s *EventService) { s.now = now }
}

func WithEventCachePurger(p EventCachePurger) EventOption {
	return func(s *EventService) { s.purger = p }
}

// NewEventService builds the service. subs is used only for the cascade of a hard
// delete and may be nil.
func NewEventService(events models.EventRepository, subs models.SubscriptionRepository, log *zap.Logger, opts ...EventOption) *EventService {
	s := &EventService{events: events, subs: subs, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now is the service clock; responses use it to compute isPast.
func (s *EventService) Now() time.Time { return s.now() }

func (s *EventService) purge(ctx context.Context, id string) {
	if s.purger == nil {
		return
	}
	s.purger.PurgeEventsList(ctx)
	if id != "" {
		s.purger.PurgeEventItem(ctx, id)
	}
}

func (s *EventService) Create(ctx context.Context, draft models.EventDraft) (*models.Event, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	e := draft.Event(s.now())
	if err := s.events.Insert(ctx, &e); err != nil {
		return nil, err
	}
	s.log.Debug("Event created",
		zap.String("event_id", e.ID.Hex()),
		zap.String("source", e.Source))
	s.purge(ctx, "")
	return &e, nil
}

func (s *EventService) Update(ctx context.Context, id string, patch models.EventPatch) (*models.Event, error) {
	oid, err := models.ParseEventID(id)
	if err != nil {
		return nil, err
	}
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	e, err := s.events.Update(ctx, oid, patch, s.now())
	if err != nil {
		return nil, err
	}
	s.purge(ctx, e.ID.Hex())
	return e, nil
}

// MarkInactive soft-deletes the event. Calling it on an inactive event is a no-op
// apart from lastUpdated.
func (s *EventService) MarkInactive(ctx context.Context, id string) (*models.Event, error) {
	return s.setActive(ctx, id, false)
}

func (s *EventService) MarkActive(ctx context.Context, id string) (*models.Event, error) {
	return s.setActive(ctx, id, true)
}

func (s *EventService) setActive(ctx context.Context, id string, active bool) (*models.Event, error) {
	oid, err := models.ParseEventID(id)
	if err != nil {
		return nil, err
	}
	e, err := s.events.SetActive(ctx, oid, active, s.now())
	if err != nil {
		return nil, err
	}
	s.purge(ctx, e.ID.Hex())
	return e, nil
}

// Delete removes the event and its subscriptions. Administrative only.
func (s *EventService) Delete(ctx context.Context, id string) error {
	oid, err := models.ParseEventID(id)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, oid); err != nil {
		return err
	}
	if s.subs != nil {
		n, err := s.subs.DeleteByEvent(ctx, oid)
		if err != nil {
			return fmt.Errorf("delete subscriptions of event %s: %w", id, err)
		}
		s.log.Info("Event deleted", zap.String("event_id", id), zap.Int64("subscriptions_deleted", n))
	}
	s.purge(ctx, id)
	return nil
}

// DeactivatePast marks every active event whose date has passed as inactive and
// returns how many changed. It only runs when an operator asks for it.
func (s *EventService) DeactivatePast(ctx context.Context) (int, error) {
	cutoff := s.now()
	past, err := s.events.Find(ctx, models.EventQuery{ActiveOnly: true, To: &cutoff})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range past {
		if !e.IsPast(cutoff) {
			continue
		}
		if _, err := s.events.SetActive(ctx, e.ID, false, cutoff); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		s.purge(ctx, "")
	}
	return n, nil
}

func (s *EventService) All(ctx context.Context) ([]models.Event, error) {
	return s.events.Find(ctx, models.EventQuery{})
}

func (s *EventService) GetActive(ctx context.Context) ([]models.Event, error) {
	return s.events.Find(ctx, models.EventQuery{ActiveOnly: true})
}

func (s *EventService) upcomingQuery() models.EventQuery {
	now := s.now()
	return models.EventQuery{ActiveOnly: true, From: &now}
}

func (s *EventService) GetUpcoming(ctx context.Context) ([]models.Event, error) {
	return s.events.Find(ctx, s.upcomingQuery())
}

// GetByID returns the event whatever its active flag; callers decide what an
// inactive event means to them.
func (s *EventService) GetByID(ctx context.Context, id string) (*models.Event, error) {
	oid, err := models.ParseEventID(id)
	if err != nil {
		return nil, err
	}
	return s.events.FindByID(ctx, oid)
}

func (s *EventService) GetBySource(ctx context.Context, source string) ([]models.Event, error) {
	return s.events.Find(ctx, models.EventQuery{ActiveOnly: true, Source: source})
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate accepts a calendar date (midnight UTC) or a full timestamp.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", models.ErrInvalidRange, v)
}

// GetByDateRange lists active events with start <= date <= end.
func (s *EventService) GetByDateRange(ctx context.Context, start, end string) ([]models.Event, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	return s.events.Find(ctx, models.EventQuery{ActiveOnly: true, From: &from, To: &to})
}

func (s *EventService) Search(ctx context.Context, q string) ([]models.Event, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, models.ErrMissingQuery
	}
	return s.events.Find(ctx, models.EventQuery{ActiveOnly: true, Text: q})
}

func (s *EventService) Stats(ctx context.Context) (*models.EventStats, error) {
	total, err := s.events.Count(ctx, models.EventQuery{})
	if err != nil {
		return nil, err
	}
	active, err := s.events.Count(ctx, models.EventQuery{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	upcoming, err := s.events.Count(ctx, s.upcomingQuery())
	if err != nil {
		return nil, err
	}
	sources, err := s.events.DistinctSources(ctx)
	if err != nil {
		return nil, err
	}
	return &models.EventStats{
		Total:       total,
		Active:      active,
		Upcoming:    upcoming,
		Sources:     len(sources),
		SourcesList: sources,
	}, nil
}

func (s *EventService) Ping(ctx context.Context) error {
	return s.events.Ping(ctx)
}
