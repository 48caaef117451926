package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecentWindow is how far back a subscription still counts as recent.
const RecentWindow = 7 * 24 * time.Hour

// Subscription is a consented email tied to one event.
type Subscription struct {
	ID        string             `bson:"_id" json:"id"`
	Email     string             `bson:"email" json:"email"`
	EventID   primitive.ObjectID `bson:"event_id" json:"eventId"`
	Consent   bool               `bson:"consent" json:"consent"`
	IPAddress string             `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent string             `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

func (s Subscription) IsRecent(now time.Time) bool {
	return !s.Timestamp.Before(now.Add(-RecentWindow))
}

// SubscriptionWithEvent is a subscription with its event looked up. Event is nil
// when the event no longer exists.
type SubscriptionWithEvent struct {
	Subscription
	Event *Event `json:"event"`
}

// SubscriptionCounts is what the store aggregates; the service derives the average.
type SubscriptionCounts struct {
	Total        int64
	UniqueEmails int64
	Events       int64
}

type SubscriptionStats struct {
	TotalSubscriptions           int64   `json:"totalSubscriptions"`
	UniqueEmails                 int64   `json:"uniqueEmails"`
	TotalEventsWithSubscriptions int64   `json:"totalEventsWithSubscriptions"`
	AverageSubscriptionsPerEvent float64 `json:"averageSubscriptionsPerEvent"`
}

func NewSubscriptionStats(c SubscriptionCounts) SubscriptionStats {
	st := SubscriptionStats{
		TotalSubscriptions:           c.Total,
		UniqueEmails:                 c.UniqueEmails,
		TotalEventsWithSubscriptions: c.Events,
	}
	if c.Events > 0 {
		st.AverageSubscriptionsPerEvent = math.Round(float64(c.Total)/float64(c.Events)*100) / 100
	}
	return st
}
