// Command cleanup deactivates every active event whose date has passed. Events are
// never expired automatically; run this from cron or by hand.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventsapi/config"
	"eventsapi/db"
	"eventsapi/logger"
	"eventsapi/services"
	"eventsapi/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stores, err := db.Open(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to open stores", zap.Error(err))
	}
	defer stores.Close(context.Background())

	var opts []services.EventOption
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		opts = append(opts, services.WithEventCachePurger(utils.NewCacheInvalidator(rdb, zl)))
	}
	events := services.NewEventService(stores.Events, stores.Subscriptions, zl, opts...)

	n, err := events.DeactivatePast(ctx)
	if err != nil {
		zl.Fatal("Deactivation failed", zap.Error(err), zap.Int("deactivated", n))
	}
	stats, err := events.Stats(ctx)
	if err != nil {
		zl.Fatal("Failed to read event stats", zap.Error(err))
	}

	zl.Info("Past events deactivated", zap.Int("deactivated", n))
	fmt.Printf("deactivated: %d\ntotal: %d  active: %d  upcoming: %d  sources: %d\n",
		n, stats.Total, stats.Active, stats.Upcoming, stats.Sources)
}
