package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"eventsapi/config"
	"eventsapi/models"
)

// Stores holds the repositories and the connections behind them.
type Stores struct {
	Events        models.EventRepository
	Subscriptions models.SubscriptionRepository

	mongo *mongo.Client
	sql   *sql.DB
}

// Open connects to MongoDB (and Postgres when it backs subscriptions), then makes
// sure the unique indexes and tables exist before anything is served.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	mg, err := ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	st := &Stores{mongo: mg}
	database := mg.Database(cfg.MongoDatabase)
	st.Events = models.NewMongoEventRepository(database.Collection(EventsCollection))

	switch cfg.SubscriptionBackend {
	case "mongo":
		st.Subscriptions = models.NewMongoSubscriptionRepository(database.Collection(SubscriptionsCollection))
	default:
		sqldb, err := OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxOpen, cfg.PostgresMaxIdle)
		if err != nil {
			st.Close(ctx)
			return nil, err
		}
		st.sql = sqldb
		st.Subscriptions = models.NewSQLSubscriptionRepository(sqldb)
	}

	if err := st.Events.EnsureIndexes(ctx); err != nil {
		st.Close(ctx)
		return nil, err
	}
	if err := st.Subscriptions.EnsureSchema(ctx); err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("subscriptions schema: %w", err)
	}

	log.Info("Stores ready",
		zap.String("mongo_database", cfg.MongoDatabase),
		zap.String("subscription_backend", cfg.SubscriptionBackend))
	return st, nil
}

func (s *Stores) Close(ctx context.Context) {
	if s.sql != nil {
		_ = s.sql.Close()
	}
	if s.mongo != nil {
		_ = s.mongo.Disconnect(ctx)
	}
}
