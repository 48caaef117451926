package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventsapi/models"
)

func boolPtr(b bool) *bool { return &b }

func (f *fixture) activeEvent(t *testing.T, title string) *models.Event {
	t.Helper()
	return f.create(t, draft(title, "Sydney", "example.com", testNow.AddDate(0, 1, 0)))
}

func TestSubscribe_Success(t *testing.T) {
	f := newFixture(t)
	e := f.activeEvent(t, "Vivid Sydney 2026")

	res, err := f.subscrSvc.Subscribe(context.Background(), SubscribeInput{
		Email:     "  John.Doe@Example.com ",
		EventID:   e.ID.Hex(),
		Consent:   boolPtr(true),
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8",
	})
	require.NoError(t, err)
	assert.Equal(t, "Vivid Sydney 2026", res.EventTitle)
	assert.Equal(t, "john.doe@example.com", res.Subscription.Email)
	assert.Equal(t, testNow, res.Subscription.Timestamp)
	assert.NotEmpty(t, res.Subscription.ID)
	assert.True(t, res.Subscription.Consent)
	assert.Equal(t, 1, f.purger.stats)

	// subscribing never touches the event
	after, err := f.eventSvc.GetByID(context.Background(), e.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, *e, *after)
}

func TestSubscribe_Rejections(t *testing.T) {
	f := newFixture(t)
	active := f.activeEvent(t, "Open")
	closed := f.activeEvent(t, "Closed")
	_, err := f.eventSvc.MarkInactive(context.Background(), closed.ID.Hex())
	require.NoError(t, err)

	tests := []struct {
		name string
		in   SubscribeInput
		want error
	}{
		{"missing email", SubscribeInput{EventID: active.ID.Hex(), Consent: boolPtr(true)}, models.ErrMissingField},
		{"missing event", SubscribeInput{Email: "a@b.com", Consent: boolPtr(true)}, models.ErrMissingField},
		{"consent false", SubscribeInput{Email: "a@b.com", EventID: active.ID.Hex(), Consent: boolPtr(false)}, models.ErrConsentRequired},
		{"consent absent", SubscribeInput{Email: "a@b.com", EventID: active.ID.Hex()}, models.ErrConsentRequired},
		{"malformed event id", SubscribeInput{Email: "a@b.com", EventID: "xyz", Consent: boolPtr(true)}, models.ErrInvalidID},
		{"unknown event", SubscribeInput{Email: "a@b.com", EventID: primitive.NewObjectID().Hex(), Consent: boolPtr(true)}, models.ErrNotFound},
		{"inactive event", SubscribeInput{Email: "a@b.com", EventID: closed.ID.Hex(), Consent: boolPtr(true)}, models.ErrInactiveEvent},
		{"bad email", SubscribeInput{Email: "not-an-email", EventID: active.ID.Hex(), Consent: boolPtr(true)}, models.ErrInvalidEmail},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.subscrSvc.Subscribe(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.subs.Items, "no rejected request may persist anything")
}

func TestSubscribe_DuplicateIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	e := f.activeEvent(t, "Comedy")
	ctx := context.Background()

	_, err := f.subscrSvc.Subscribe(ctx, SubscribeInput{Email: "jane@example.com", EventID: e.ID.Hex(), Consent: boolPtr(true)})
	require.NoError(t, err)

	_, err = f.subscrSvc.Subscribe(ctx, SubscribeInput{Email: "JANE@example.com", EventID: e.ID.Hex(), Consent: boolPtr(true)})
	assert.ErrorIs(t, err, models.ErrDuplicateSubscription)
	assert.Len(t, f.subs.Items, 1)
}

func TestSubscribe_ConcurrentSameAddress(t *testing.T) {
	f := newFixture(t)
	e := f.activeEvent(t, "NYE")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.subscrSvc.Subscribe(context.Background(), SubscribeInput{
				Email: "race@example.com", EventID: e.ID.Hex(), Consent: boolPtr(true),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, models.ErrDuplicateSubscription):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dupes)
	assert.Len(t, f.subs.Items, 1)
}

func TestSubscriptionStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.subscrSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStats{}, *st)

	a, b := f.activeEvent(t, "A"), f.activeEvent(t, "B")
	for _, sub := range []SubscribeInput{
		{Email: "one@example.com", EventID: a.ID.Hex()},
		{Email: "two@example.com", EventID: a.ID.Hex()},
		{Email: "one@example.com", EventID: b.ID.Hex()},
	} {
		sub.Consent = boolPtr(true)
		_, err := f.subscrSvc.Subscribe(ctx, sub)
		require.NoError(t, err)
	}

	st, err = f.subscrSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.TotalSubscriptions)
	assert.Equal(t, int64(2), st.UniqueEmails)
	assert.Equal(t, int64(2), st.TotalEventsWithSubscriptions)
	assert.Equal(t, 1.5, st.AverageSubscriptionsPerEvent)
}

func TestByEventAndByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.activeEvent(t, "A"), f.activeEvent(t, "B")

	subscribeAt := func(email string, e *models.Event, at time.Time) {
		f.subscrSvc.now = func() time.Time { return at }
		_, err := f.subscrSvc.Subscribe(ctx, SubscribeInput{Email: email, EventID: e.ID.Hex(), Consent: boolPtr(true)})
		require.NoError(t, err)
	}
	subscribeAt("one@example.com", a, testNow.Add(-2*time.Hour))
	subscribeAt("two@example.com", a, testNow.Add(-time.Hour))
	subscribeAt("one@example.com", b, testNow)

	byEvent, err := f.subscrSvc.ByEvent(ctx, a.ID.Hex())
	require.NoError(t, err)
	require.Len(t, byEvent, 2)
	assert.Equal(t, "two@example.com", byEvent[0].Email, "newest first")

	_, err = f.subscrSvc.ByEvent(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrInvalidID)

	byUser, err := f.subscrSvc.ByUser(ctx, "ONE@example.com")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	require.NotNil(t, byUser[0].Event)
	assert.Equal(t, "B", byUser[0].Event.Title)
	assert.Equal(t, "A", byUser[1].Event.Title)

	none, err := f.subscrSvc.ByUser(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.activeEvent(t, "Sculpture by the Sea")

	res, err := f.subscrSvc.Check(ctx, "a@example.com", e.ID.Hex())
	require.NoError(t, err)
	assert.False(t, res.IsSubscribed)

	_, err = f.subscrSvc.Subscribe(ctx, SubscribeInput{Email: "a@example.com", EventID: e.ID.Hex(), Consent: boolPtr(true)})
	require.NoError(t, err)

	res, err = f.subscrSvc.Check(ctx, " A@Example.com", e.ID.Hex())
	require.NoError(t, err)
	assert.True(t, res.IsSubscribed)
	assert.True(t, res.IsRecent)
	assert.Equal(t, testNow, res.Timestamp)

	f.subscrSvc.now = func() time.Time { return testNow.Add(models.RecentWindow + time.Hour) }
	res, err = f.subscrSvc.Check(ctx, "a@example.com", e.ID.Hex())
	require.NoError(t, err)
	assert.True(t, res.IsSubscribed)
	assert.False(t, res.IsRecent)

	_, err = f.subscrSvc.Check(ctx, "", e.ID.Hex())
	assert.ErrorIs(t, err, models.ErrMissingField)
	_, err = f.subscrSvc.Check(ctx, "a@example.com", "bad")
	assert.ErrorIs(t, err, models.ErrInvalidID)
}
