// Package mocks holds map-backed repositories for tests. They enforce the same
// unique constraints as the real stores, under a mutex, so concurrent inserts
// behave like the indexed collections.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventsapi/models"
)

type MockEventRepo struct {
	mu    sync.Mutex
	Items map[primitive.ObjectID]models.Event
	Err   error // returned by every call when set
}

func NewMockEventRepo() *MockEventRepo {
	return &MockEventRepo{Items: map[primitive.ObjectID]models.Event{}}
}

func (m *MockEventRepo) EnsureIndexes(context.Context) error { return m.Err }
func (m *MockEventRepo) Ping(context.Context) error          { return m.Err }

func (m *MockEventRepo) hashTaken(hash string, except primitive.ObjectID) bool {
	if hash == "" {
		return false
	}
	for id, e := range m.Items {
		if id != except && e.EventHash == hash {
			return true
		}
	}
	return false
}

func (m *MockEventRepo) Insert(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.hashTaken(e.EventHash, primitive.NilObjectID) {
		return fmt.Errorf("%w: event_hash %q", models.ErrDuplicate, e.EventHash)
	}
	e.ID = primitive.NewObjectID()
	m.Items[e.ID] = *e
	return nil
}

func (m *MockEventRepo) Update(_ context.Context, id primitive.ObjectID, p models.EventPatch, now time.Time) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.Items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if p.EventHash != nil && m.hashTaken(*p.EventHash, id) {
		return nil, models.ErrDuplicate
	}
	p.Apply(&e)
	e.LastUpdated = now
	m.Items[id] = e
	return &e, nil
}

func (m *MockEventRepo) SetActive(_ context.Context, id primitive.ObjectID, active bool, now time.Time) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.Items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	e.IsActive = active
	e.LastUpdated = now
	m.Items[id] = e
	return &e, nil
}

func (m *MockEventRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Items, id)
	return nil
}

func (m *MockEventRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.Items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &e, nil
}

func (m *MockEventRepo) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := map[primitive.ObjectID]models.Event{}
	for _, id := range ids {
		if e, ok := m.Items[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *MockEventRepo) Find(_ context.Context, q models.EventQuery) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []models.Event{}
	for _, e := range m.Items {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MockEventRepo) Count(ctx context.Context, q models.EventQuery) (int64, error) {
	events, err := m.Find(ctx, q)
	return int64(len(events)), err
}

func (m *MockEventRepo) DistinctSources(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, e := range m.Items {
		if !seen[e.Source] {
			seen[e.Source] = true
			out = append(out, e.Source)
		}
	}
	sort.Strings(out)
	return out, nil
}

type MockSubscriptionRepo struct {
	mu    sync.Mutex
	Items map[string]models.Subscription // "email:eventId"
	Err   error
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{Items: map[string]models.Subscription{}}
}

func key(email string, eventID primitive.ObjectID) string { return email + ":" + eventID.Hex() }

func (m *MockSubscriptionRepo) EnsureSchema(context.Context) error { return m.Err }
func (m *MockSubscriptionRepo) Ping(context.Context) error         { return m.Err }

func (m *MockSubscriptionRepo) Insert(_ context.Context, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	k := key(s.Email, s.EventID)
	if _, ok := m.Items[k]; ok {
		return models.ErrDuplicateSubscription
	}
	s.ID = uuid.NewString()
	m.Items[k] = *s
	return nil
}

func (m *MockSubscriptionRepo) FindOne(_ context.Context, email string, eventID primitive.ObjectID) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.Items[key(email, eventID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *MockSubscriptionRepo) filter(keep func(models.Subscription) bool) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []models.Subscription{}
	for _, s := range m.Items {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *MockSubscriptionRepo) ListByEvent(_ context.Context, eventID primitive.ObjectID) ([]models.Subscription, error) {
	return m.filter(func(s models.Subscription) bool { return s.EventID == eventID })
}

func (m *MockSubscriptionRepo) ListByEmail(_ context.Context, email string) ([]models.Subscription, error) {
	return m.filter(func(s models.Subscription) bool { return s.Email == email })
}

func (m *MockSubscriptionRepo) Counts(context.Context) (models.SubscriptionCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.SubscriptionCounts{}, m.Err
	}
	emails := map[string]bool{}
	events := map[primitive.ObjectID]bool{}
	for _, s := range m.Items {
		emails[s.Email] = true
		events[s.EventID] = true
	}
	return models.SubscriptionCounts{
		Total:        int64(len(m.Items)),
		UniqueEmails: int64(len(emails)),
		Events:       int64(len(events)),
	}, nil
}

func (m *MockSubscriptionRepo) DeleteByEvent(_ context.Context, eventID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for k, s := range m.Items {
		if s.EventID == eventID {
			delete(m.Items, k)
			n++
		}
	}
	return n, nil
}
