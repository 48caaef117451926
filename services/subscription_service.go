package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"eventsapi/models"
)

// SubscriptionCachePurger drops the cached subscription statistics.
type SubscriptionCachePurger interface {
	PurgeSubscriptionStats(ctx context.Context)
}

// SubscribeInput is the explicit request shape for Subscribe. Consent is a pointer
// so a missing value can be told apart from false; both are rejected.
type SubscribeInput struct {
	Email     string
	EventID   string
	Consent   *bool
	IPAddress string
	UserAgent string
}

type SubscribeResult struct {
	Subscription models.Subscription
	EventTitle   string
}

type CheckResult struct {
	IsSubscribed bool
	Timestamp    time.Time
	IsRecent     bool
}

type SubscriptionService struct {
	subs   models.SubscriptionRepository
	events models.EventRepository
	purger SubscriptionCachePurger
	log    *zap.Logger
	now    func() time.Time
}

type SubscriptionOption func(*SubscriptionService)

func WithSubscriptionClock(now func() time.Time) SubscriptionOption {
	return func(s *SubscriptionService) { s.now = now }
}

func WithSubscriptionCachePurger(p SubscriptionCachePurger) SubscriptionOption {
	return func(s *SubscriptionService) { s.purger = p }
}

func NewSubscriptionService(subs models.SubscriptionRepository, events models.EventRepository, log *zap.Logger, opts ...SubscriptionOption) *SubscriptionService {
	s := &SubscriptionService{subs: subs, events: events, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe records one consented subscription. It never changes the event.
// A retry of a request that already went through fails with
// ErrDuplicateSubscription, which callers should read as "already subscribed".
func (s *SubscriptionService) Subscribe(ctx context.Context, in SubscribeInput) (*SubscribeResult, error) {
	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.EventID) == "" {
		return nil, models.ErrMissingField
	}
	if in.Consent == nil || !*in.Consent {
		return nil, models.ErrConsentRequired
	}

	eventID, err := models.ParseEventID(in.EventID)
	if err != nil {
		return nil, err
	}
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, models.ErrInactiveEvent
	}

	email := models.NormalizeEmail(in.Email)
	if !models.IsValidEmail(email) {
		return nil, models.ErrInvalidEmail
	}

	sub := models.Subscription{
		Email:     email,
		EventID:   eventID,
		Consent:   true,
		IPAddress: strings.TrimSpace(in.IPAddress),
		UserAgent: strings.TrimSpace(in.UserAgent),
		Timestamp: s.now(),
	}
	if err := s.subs.Insert(ctx, &sub); err != nil {
		return nil, err
	}

	s.log.Info("Subscription created",
		zap.String("event_id", eventID.Hex()),
		zap.String("subscription_id", sub.ID))
	if s.purger != nil {
		s.purger.PurgeSubscriptionStats(ctx)
	}
	return &SubscribeResult{Subscription: sub, EventTitle: event.Title}, nil
}

func (s *SubscriptionService) Stats(ctx context.Context) (*models.SubscriptionStats, error) {
	c, err := s.subs.Counts(ctx)
	if err != nil {
		return nil, err
	}
	st := models.NewSubscriptionStats(c)
	return &st, nil
}

func (s *SubscriptionService) ByEvent(ctx context.Context, eventID string) ([]models.Subscription, error) {
	oid, err := models.ParseEventID(eventID)
	if err != nil {
		return nil, err
	}
	return s.subs.ListByEvent(ctx, oid)
}

// ByUser lists an address's subscriptions, newest first, each with its event.
func (s *SubscriptionService) ByUser(ctx context.Context, email string) ([]models.SubscriptionWithEvent, error) {
	subs, err := s.subs.ListByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.EventID)
	}
	events, err := s.events.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.SubscriptionWithEvent, 0, len(subs))
	for _, sub := range subs {
		item := models.SubscriptionWithEvent{Subscription: sub}
		if e, ok := events[sub.EventID]; ok {
			item.Event = &e
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *SubscriptionService) Check(ctx context.Context, email, eventID string) (*CheckResult, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(eventID) == "" {
		return nil, models.ErrMissingField
	}
	oid, err := models.ParseEventID(eventID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.FindOne(ctx, models.NormalizeEmail(email), oid)
	if errors.Is(err, models.ErrNotFound) {
		return &CheckResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &CheckResult{
		IsSubscribed: true,
		Timestamp:    sub.Timestamp,
		IsRecent:     sub.IsRecent(s.now()),
	}, nil
}

func (s *SubscriptionService) Ping(ctx context.Context) error {
	return s.subs.Ping(ctx)
}
