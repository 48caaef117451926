package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoSubscriptionRepo struct {
	col *mongo.Collection
}

// NewMongoSubscriptionRepository keeps subscriptions next to the events, in the
// emailsubscriptions collection.
func NewMongoSubscriptionRepository(col *mongo.Collection) SubscriptionRepository {
	return &mongoSubscriptionRepo{col: col}
}

func (r *mongoSubscriptionRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_event_unique"),
		},
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create subscription indexes: %w", err)
	}
	return nil
}

func (r *mongoSubscriptionRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.col.Database().Client().Ping(ctx, nil)
}

func (r *mongoSubscriptionRepo) Insert(ctx context.Context, s *Subscription) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s.ID = uuid.NewString()
	if _, err := r.col.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSubscription
		}
		return err
	}
	return nil
}

func (r *mongoSubscriptionRepo) FindOne(ctx context.Context, email string, eventID primitive.ObjectID) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var s Subscription
	err := r.col.FindOne(ctx, bson.M{"email": email, "event_id": eventID}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *mongoSubscriptionRepo) list(ctx context.Context, filter bson.M) ([]Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Subscription{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoSubscriptionRepo) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Subscription, error) {
	return r.list(ctx, bson.M{"event_id": eventID})
}

func (r *mongoSubscriptionRepo) ListByEmail(ctx context.Context, email string) ([]Subscription, error) {
	return r.list(ctx, bson.M{"email": email})
}

func (r *mongoSubscriptionRepo) Counts(ctx context.Context) (SubscriptionCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c SubscriptionCounts
	total, err := r.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return c, err
	}
	emails, err := r.col.Distinct(ctx, "email", bson.D{})
	if err != nil {
		return c, err
	}
	events, err := r.col.Distinct(ctx, "event_id", bson.D{})
	if err != nil {
		return c, err
	}
	c.Total = total
	c.UniqueEmails = int64(len(emails))
	c.Events = int64(len(events))
	return c, nil
}

func (r *mongoSubscriptionRepo) DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
