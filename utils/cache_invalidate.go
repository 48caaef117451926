package utils

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventsListPrefix     = "cache:events:list:"
	EventsItemPrefix     = "cache:events:item:"
	SubscriptionStatsKey = "cache:subscribe:stats"
)

// sha1Hex keeps redis keys short whatever the path and query look like.
func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func EventsListKey(path, rawQuery string) string {
	return EventsListPrefix + sha1Hex("GET|"+path+"|"+rawQuery)
}

func EventItemKey(id string) string {
	return EventsItemPrefix + sha1Hex("GET|/events/"+id)
}

type CacheInvalidator struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewCacheInvalidator(rdb *redis.Client, log *zap.Logger) *CacheInvalidator {
	return &CacheInvalidator{rdb: rdb, log: log}
}

// PurgeEventsList drops every cached listing (/events, /events/upcoming, search, ...).
func (ci *CacheInvalidator) PurgeEventsList(ctx context.Context) {
	iter := ci.rdb.Scan(ctx, 0, EventsListPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := ci.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			ci.log.Warn("Failed to purge cache key", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		ci.log.Warn("Failed to scan event list cache", zap.Error(err))
	}
}

// PurgeEventItem drops the cached GET /events/:id response. The key embeds the id,
// so no scan is needed.
func (ci *CacheInvalidator) PurgeEventItem(ctx context.Context, id string) {
	if err := ci.rdb.Del(ctx, EventItemKey(id)).Err(); err != nil {
		ci.log.Warn("Failed to purge event item cache", zap.String("event_id", id), zap.Error(err))
	}
}

func (ci *CacheInvalidator) PurgeSubscriptionStats(ctx context.Context) {
	if err := ci.rdb.Del(ctx, SubscriptionStatsKey).Err(); err != nil {
		ci.log.Warn("Failed to purge subscription stats cache", zap.Error(err))
	}
}
