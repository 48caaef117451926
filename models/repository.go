package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ===== Events =====
// Every method is a single store round trip. Uniqueness of event_hash is left to
// the store's unique index.
type EventRepository interface {
	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error

	Insert(ctx context.Context, e *Event) error
	Update(ctx context.Context, id primitive.ObjectID, p EventPatch, now time.Time) (*Event, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool, now time.Time) (*Event, error)
	Delete(ctx context.Context, id primitive.ObjectID) error

	FindByID(ctx context.Context, id primitive.ObjectID) (*Event, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]Event, error)
	Find(ctx context.Context, q EventQuery) ([]Event, error) // date ascending
	Count(ctx context.Context, q EventQuery) (int64, error)
	DistinctSources(ctx context.Context) ([]string, error)
}

// ===== Subscriptions =====
// Insert relies on the (email, event_id) unique constraint to reject duplicates.
type SubscriptionRepository interface {
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error

	Insert(ctx context.Context, s *Subscription) error
	FindOne(ctx context.Context, email string, eventID primitive.ObjectID) (*Subscription, error)
	ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Subscription, error) // newest first
	ListByEmail(ctx context.Context, email string) ([]Subscription, error)               // newest first
	Counts(ctx context.Context) (SubscriptionCounts, error)
	DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error)
}
