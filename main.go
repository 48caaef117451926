package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"eventsapi/config"
	"eventsapi/db"
	"eventsapi/logger"
	"eventsapi/middlewares"
	"eventsapi/routes"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	stores, err := db.Open(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	var (
		rdb       *redis.Client
		eventOpts []services.EventOption
		subOpts   []services.SubscriptionOption
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("Redis unreachable, cache and quota will fail open", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		inv := utils.NewCacheInvalidator(rdb, zl)
		eventOpts = append(eventOpts, services.WithEventCachePurger(inv))
		subOpts = append(subOpts, services.WithSubscriptionCachePurger(inv))
	}

	events := services.NewEventService(stores.Events, stores.Subscriptions, zl, eventOpts...)
	subs := services.NewSubscriptionService(stores.Subscriptions, stores.Events, zl, subOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middlewares.NewMetrics(reg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := gin.New()
	server.Use(
		middlewares.Recovery(zl, cfg.IsDevelopment()),
		middlewares.RequestLogger(zl),
		middlewares.SecurityHeaders(),
	)

	routes.RegisterRoutes(ctx, server, events, subs, routes.Options{
		Environment:         cfg.Environment,
		Debug:               cfg.IsDevelopment(),
		Redis:               rdb,
		CacheTTL:            cfg.CacheTTL,
		GlobalLimit:         middlewares.LimiterConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst, IdleTTL: 3 * time.Minute},
		SubscribeLimit:      middlewares.LimiterConfig{RPS: cfg.SubscribeRPS, Burst: cfg.SubscribeBurst, IdleTTL: 10 * time.Minute},
		SubscribeDailyQuota: cfg.SubscribeDailyQuota,
		Metrics:             metrics,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, zl)

	handler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.FrontendURL, ","),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: cfg.FrontendURL != "*",
	}).Handler(server)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("Server listening", zap.String("addr", srv.Addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
