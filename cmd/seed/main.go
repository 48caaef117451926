// Command seed loads the bundled sample events (and optionally sample subscribers)
// into the configured stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventsapi/config"
	"eventsapi/db"
	"eventsapi/logger"
	"eventsapi/seed"
	"eventsapi/services"
	"eventsapi/utils"
)

func main() {
	reset := flag.Bool("reset", false, "delete every event and its subscriptions first")
	withSubs := flag.Bool("subscriptions", false, "also create sample subscriptions")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stores, err := db.Open(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to open stores", zap.Error(err))
	}
	defer stores.Close(context.Background())

	data, err := seed.Load()
	if err != nil {
		zl.Fatal("Failed to load sample data", zap.Error(err))
	}

	var (
		eventOpts []services.EventOption
		subOpts   []services.SubscriptionOption
	)
	// running servers would otherwise serve stale listings until the TTL runs out
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		inv := utils.NewCacheInvalidator(rdb, zl)
		eventOpts = append(eventOpts, services.WithEventCachePurger(inv))
		subOpts = append(subOpts, services.WithSubscriptionCachePurger(inv))
	}

	events := services.NewEventService(stores.Events, stores.Subscriptions, zl, eventOpts...)
	subs := services.NewSubscriptionService(stores.Subscriptions, stores.Events, zl, subOpts...)

	sum, err := seed.New(events, subs, zl).Run(ctx, data, *reset, *withSubs)
	if err != nil {
		zl.Fatal("Seeding failed", zap.Error(err))
	}
	fmt.Printf("events: %d inserted, %d already present, %d removed\nsubscriptions: %d created\n",
		sum.Inserted, sum.Skipped, sum.Removed, sum.Subscriptions)
}
