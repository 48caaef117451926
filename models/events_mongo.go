package models

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

type mongoEventRepo struct {
	col *mongo.Collection
}

func NewMongoEventRepository(col *mongo.Collection) EventRepository {
	return &mongoEventRepo{col: col}
}

func (r *mongoEventRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// sparse: documents without a hash never collide
			Keys:    bson.D{{Key: "event_hash", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("event_hash_unique"),
		},
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "is_active", Value: 1}}},
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "is_active", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

func (r *mongoEventRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.col.Database().Client().Ping(ctx, nil)
}

func (r *mongoEventRepo) Insert(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	e.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, e)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: event_hash %q", ErrDuplicate, e.EventHash)
		}
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		e.ID = oid
	}
	return nil
}

func patchSet(p EventPatch, now time.Time) bson.M {
	set := bson.M{"last_updated": now}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Date != nil {
		set["date"] = *p.Date
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.ImageURL != nil {
		set["image_url"] = *p.ImageURL
	}
	if p.TicketURL != nil {
		set["ticket_url"] = *p.TicketURL
	}
	if p.Source != nil {
		set["source"] = *p.Source
	}
	if p.EventHash != nil {
		set["event_hash"] = *p.EventHash
	}
	return set
}

// patchUpdate builds the update document for p.
func patchUpdate(p EventPatch, now time.Time) bson.M {
	set := patchSet(p, now)
	update := bson.M{"$set": set}
	// an emptied hash must leave the sparse index, so drop the field instead of storing ""
	if p.EventHash != nil && *p.EventHash == "" {
		delete(set, "event_hash")
		update["$unset"] = bson.M{"event_hash": ""}
	}
	return update
}

func (r *mongoEventRepo) Update(ctx context.Context, id primitive.ObjectID, p EventPatch, now time.Time) (*Event, error) {
	return r.findOneAndUpdate(ctx, id, patchUpdate(p, now))
}

func (r *mongoEventRepo) SetActive(ctx context.Context, id primitive.ObjectID, active bool, now time.Time) (*Event, error) {
	return r.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{"is_active": active, "last_updated": now}})
}

func (r *mongoEventRepo) findOneAndUpdate(ctx context.Context, id primitive.ObjectID, update bson.M) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var e Event
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &e, nil
}

func (r *mongoEventRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoEventRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var e Event
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *mongoEventRepo) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]Event, error) {
	out := make(map[primitive.ObjectID]Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	events, err := r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		out[e.ID] = e
	}
	return out, nil
}

// queryFilter translates an EventQuery into the bson filter the indexes serve.
func queryFilter(q EventQuery) bson.M {
	filter := bson.M{}
	if q.ActiveOnly {
		filter["is_active"] = true
	}
	if q.Source != "" {
		filter["source"] = q.Source
	}
	if q.From != nil || q.To != nil {
		date := bson.M{}
		if q.From != nil {
			date["$gte"] = *q.From
		}
		if q.To != nil {
			date["$lte"] = *q.To
		}
		filter["date"] = date
	}
	if q.Text != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q.Text), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"location": re},
			bson.M{"description": re},
		}
	}
	return filter
}

func (r *mongoEventRepo) Find(ctx context.Context, q EventQuery) ([]Event, error) {
	return r.find(ctx, queryFilter(q))
}

func (r *mongoEventRepo) find(ctx context.Context, filter bson.M) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Event{}
	for cur.Next(ctx) {
		var e Event
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

func (r *mongoEventRepo) Count(ctx context.Context, q EventQuery) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.col.CountDocuments(ctx, queryFilter(q))
}

func (r *mongoEventRepo) DistinctSources(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vals, err := r.col.Distinct(ctx, "source", bson.D{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}
