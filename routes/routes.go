package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventsapi/middlewares"
	"eventsapi/services"
)

// Options carries the wiring main decides on. A nil Redis turns off the response
// cache and the subscribe quota; a nil Metrics turns off /metrics.
type Options struct {
	Environment string
	Debug       bool // adds fault details to 500 responses

	Redis    *redis.Client
	CacheTTL time.Duration

	GlobalLimit         middlewares.LimiterConfig
	SubscribeLimit      middlewares.LimiterConfig
	SubscribeDailyQuota int

	Metrics        *middlewares.Metrics
	MetricsHandler http.Handler
}

type deps struct {
	events  *services.EventService
	subs    *services.SubscriptionService
	metrics *middlewares.Metrics
	opts    Options
	log     *zap.Logger
}

// RegisterRoutes mounts every endpoint on server. ctx bounds the background work of
// the rate limiters.
func RegisterRoutes(
	ctx context.Context,
	server *gin.Engine,
	events *services.EventService,
	subs *services.SubscriptionService,
	opts Options,
	log *zap.Logger,
) {
	d := &deps{events: events, subs: subs, metrics: opts.Metrics, opts: opts, log: log}

	if opts.Metrics != nil {
		server.Use(opts.Metrics.Middleware())
	}

	// global limit per client IP
	if opts.GlobalLimit.RPS > 0 {
		global := middlewares.NewRateLimiter(ctx, opts.GlobalLimit)
		server.Use(global.Middleware(middlewares.ClientIPKey("ip:")))
	}

	cached := []gin.HandlerFunc{}
	if opts.Redis != nil {
		cached = append(cached, middlewares.ResponseCache(opts.Redis, opts.CacheTTL))
	}

	server.GET("/health", d.health)
	server.GET("/api", d.apiIndex)
	if opts.Metrics != nil && opts.MetricsHandler != nil {
		server.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	ev := server.Group("/events", cached...)
	ev.GET("", d.getEvents)
	ev.GET("/upcoming", d.getUpcomingEvents)
	ev.GET("/stats", d.getEventStats)
	ev.GET("/search", d.searchEvents)
	ev.GET("/range", d.getEventsByDateRange)
	ev.GET("/source/:source", d.getEventsBySource)
	ev.GET("/:id", d.getEvent)

	sub := server.Group("/subscribe")
	subscribeChain := []gin.HandlerFunc{}
	if opts.SubscribeLimit.RPS > 0 {
		limiter := middlewares.NewRateLimiter(ctx, opts.SubscribeLimit)
		subscribeChain = append(subscribeChain, limiter.Middleware(middlewares.ClientIPKey("subscribe:")))
	}
	if opts.Redis != nil && opts.SubscribeDailyQuota > 0 {
		subscribeChain = append(subscribeChain, middlewares.Quota(opts.Redis, middlewares.QuotaRule{
			Limit:  opts.SubscribeDailyQuota,
			Window: 24 * time.Hour,
			KeyFn:  middlewares.SubscribeQuotaKey,
		}, log))
	}
	sub.POST("", append(subscribeChain, d.subscribe)...)
	sub.GET("/stats", append(cached, d.getSubscriptionStats)...)
	sub.GET("/check", d.checkSubscription)
	sub.GET("/event/:eventId", d.getSubscriptionsByEvent)
	sub.GET("/user/:email", d.getSubscriptionsByUser)

	server.NoRoute(d.notFound)
}
