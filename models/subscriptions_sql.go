package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Postgres SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

type sqlSubscriptionRepo struct{ db *sql.DB }

func NewSQLSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &sqlSubscriptionRepo{db}
}

// EnsureSchema creates email_subscriptions. UNIQUE(email, event_id) is what rejects
// a second subscription for the same pair, concurrent or not.
func (r *sqlSubscriptionRepo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS email_subscriptions (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL,
			event_id TEXT NOT NULL,
			consent BOOLEAN NOT NULL CHECK (consent),
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			subscribed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (email, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS email_subscriptions_event_idx ON email_subscriptions (event_id)`,
		`CREATE INDEX IF NOT EXISTS email_subscriptions_subscribed_at_idx ON email_subscriptions (subscribed_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create email_subscriptions schema: %w", err)
		}
	}
	return nil
}

func (r *sqlSubscriptionRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *sqlSubscriptionRepo) Insert(ctx context.Context, s *Subscription) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_subscriptions(id, email, event_id, consent, ip_address, user_agent, subscribed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.Email, s.EventID.Hex(), s.Consent, s.IPAddress, s.UserAgent, s.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateSubscription
		}
		return err
	}
	return nil
}

const subscriptionColumns = `id, email, event_id, consent, ip_address, user_agent, subscribed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (Subscription, error) {
	var (
		s       Subscription
		eventID string
	)
	if err := row.Scan(&s.ID, &s.Email, &eventID, &s.Consent, &s.IPAddress, &s.UserAgent, &s.Timestamp); err != nil {
		return Subscription{}, err
	}
	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return Subscription{}, fmt.Errorf("subscription %s: stored event_id %q: %w", s.ID, eventID, err)
	}
	s.EventID = oid
	return s, nil
}

func (r *sqlSubscriptionRepo) FindOne(ctx context.Context, email string, eventID primitive.ObjectID) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM email_subscriptions WHERE email=$1 AND event_id=$2`,
		email, eventID.Hex())
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sqlSubscriptionRepo) list(ctx context.Context, where string, arg any) ([]Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM email_subscriptions WHERE `+where+` ORDER BY subscribed_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sqlSubscriptionRepo) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Subscription, error) {
	return r.list(ctx, "event_id=$1", eventID.Hex())
}

func (r *sqlSubscriptionRepo) ListByEmail(ctx context.Context, email string) ([]Subscription, error) {
	return r.list(ctx, "email=$1", email)
}

func (r *sqlSubscriptionRepo) Counts(ctx context.Context) (SubscriptionCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c SubscriptionCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT email), COUNT(DISTINCT event_id) FROM email_subscriptions`).
		Scan(&c.Total, &c.UniqueEmails, &c.Events)
	return c, err
}

func (r *sqlSubscriptionRepo) DeleteByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM email_subscriptions WHERE event_id=$1`, eventID.Hex())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
