package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"eventsapi/utils"
)

func init() { gin.SetMode(gin.TestMode) }

func get(s http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// 1st GET MISS, 2nd GET HIT with the same body
func TestResponseCache_MissThenHit(t *testing.T) {
	_, rdb := newRedis(t)
	calls := 0
	s := gin.New()
	s.Use(ResponseCache(rdb, 30*time.Second))
	s.GET("/events", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"success": true, "count": 0})
	})

	w1 := get(s, "/events")
	if w1.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("want MISS, got %q", w1.Header().Get("X-Cache"))
	}
	w2 := get(s, "/events")
	if w2.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("want HIT, got %q", w2.Header().Get("X-Cache"))
	}
	if w1.Body.String() != w2.Body.String() {
		t.Fatalf("cached body differs: %q vs %q", w1.Body.String(), w2.Body.String())
	}
	if ct := w2.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type not restored: %q", ct)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

// /events/source/a and /events/source/b are different listings
func TestResponseCache_KeyedByConcretePath(t *testing.T) {
	_, rdb := newRedis(t)
	s := gin.New()
	s.Use(ResponseCache(rdb, 30*time.Second))
	s.GET("/events/source/:source", func(c *gin.Context) { c.String(http.StatusOK, c.Param("source")) })

	get(s, "/events/source/a")
	w := get(s, "/events/source/b")
	if w.Header().Get("X-Cache") != "MISS" || w.Body.String() != "b" {
		t.Fatalf("source b served from the wrong entry: %q %q", w.Header().Get("X-Cache"), w.Body.String())
	}
}

func TestResponseCache_TimeDependentRoutesNotCached(t *testing.T) {
	mr, rdb := newRedis(t)
	s := gin.New()
	s.Use(ResponseCache(rdb, 30*time.Second))
	s.GET("/events/upcoming", func(c *gin.Context) { c.String(http.StatusOK, "upcoming") })
	s.GET("/events/stats", func(c *gin.Context) { c.String(http.StatusOK, "stats") })

	for _, path := range []string{"/events/upcoming", "/events/stats"} {
		get(s, path)
		if w := get(s, path); w.Header().Get("X-Cache") != "" {
			t.Fatalf("%s cached: %q", path, w.Header().Get("X-Cache"))
		}
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("nothing should be cached, got %v", keys)
	}
}

func TestResponseCache_CappedTTL(t *testing.T) {
	mr, rdb := newRedis(t)
	s := gin.New()
	s.Use(ResponseCache(rdb, 30*time.Second))
	s.GET("/events", func(c *gin.Context) {
		CapCacheTTL(c, 5*time.Second)
		CapCacheTTL(c, 20*time.Second) // larger cap does not loosen the first
		c.String(http.StatusOK, "soon")
	})
	s.GET("/events/source/:source", func(c *gin.Context) {
		CapCacheTTL(c, 0)
		c.String(http.StatusOK, "now")
	})

	get(s, "/events")
	key := utils.EventsListKey("/events", "")
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 5*time.Second {
		t.Fatalf("capped ttl = %v", ttl)
	}
	mr.FastForward(6 * time.Second)
	if got := get(s, "/events").Header().Get("X-Cache"); got != "MISS" {
		t.Fatalf("want MISS after the cap, got %q", got)
	}

	get(s, "/events/source/x")
	if mr.Exists(utils.EventsListKey("/events/source/x", "")) {
		t.Fatalf("zero cap must not be stored")
	}
}

func TestResponseCache_SkipsErrorsAndUncachedRoutes(t *testing.T) {
	mr, rdb := newRedis(t)
	s := gin.New()
	s.Use(ResponseCache(rdb, 30*time.Second))
	s.GET("/events/:id", func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"success": false}) })
	s.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	get(s, "/events/abc")
	get(s, "/health")
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("nothing should be cached, got %v", keys)
	}
	if w := get(s, "/health"); w.Header().Get("X-Cache") != "" {
		t.Fatalf("health must not carry X-Cache")
	}
}

// a purge after a write sends the next read back to the handler
func TestResponseCache_InvalidatedByPurge(t *testing.T) {
	_, rdb := newRedis(t)
	inv := utils.NewCacheInvalidator(rdb, zap.NewNop())
	s := gin.New()
	s.Use(ResponseCache(rdb, 30*time.Second))
	s.GET("/events/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })
	s.GET("/subscribe/stats", func(c *gin.Context) { c.String(http.StatusOK, "stats") })

	id := primitive.NewObjectID().Hex()
	item := "/events/" + strings.ToUpper(id)
	get(s, item)
	get(s, "/subscribe/stats")
	if get(s, "/events/"+id).Header().Get("X-Cache") != "HIT" {
		t.Fatalf("item not cached under its canonical id")
	}

	inv.PurgeEventItem(context.Background(), id)
	inv.PurgeSubscriptionStats(context.Background())

	if got := get(s, item).Header().Get("X-Cache"); got != "MISS" {
		t.Fatalf("want MISS after purge, got %q", got)
	}
	if got := get(s, "/subscribe/stats").Header().Get("X-Cache"); got != "MISS" {
		t.Fatalf("want MISS for stats after purge, got %q", got)
	}
}

// RPS=1, Burst=1: the second immediate call is throttled with Retry-After
func TestRateLimiter_429(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rl := NewRateLimiter(ctx, LimiterConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})

	s := gin.New()
	s.Use(rl.Middleware(func(c *gin.Context) string { return "k" }))
	s.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	if w := get(s, "/x"); w.Code != http.StatusOK {
		t.Fatalf("first call: want 200, got %d", w.Code)
	}
	w := get(s, "/x")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("want Retry-After 1, got %q", w.Header().Get("Retry-After"))
	}
	if !strings.Contains(w.Body.String(), `"success":false`) {
		t.Fatalf("missing envelope: %s", w.Body.String())
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rl := NewRateLimiter(ctx, LimiterConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})

	s := gin.New()
	s.Use(rl.Middleware(func(c *gin.Context) string { return c.Query("k") }))
	s.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	get(s, "/x?k=a")
	if w := get(s, "/x?k=b"); w.Code != http.StatusOK {
		t.Fatalf("other key throttled: %d", w.Code)
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rl := NewRateLimiter(ctx, LimiterConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	rl.getLimiter("a")

	rl.evictIdle(time.Now().Add(2 * time.Minute))
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.buckets) != 0 {
		t.Fatalf("idle bucket kept")
	}
}

// limit 2 per window: the third request is refused, and the key expires
func TestQuota_ExceedsLimit(t *testing.T) {
	mr, rdb := newRedis(t)
	s := gin.New()
	s.POST("/subscribe", Quota(rdb, QuotaRule{
		Limit:  2,
		Window: time.Hour,
		KeyFn:  func(*gin.Context) string { return "quota:test" },
	}, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusCreated) })

	post := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		s.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscribe", nil))
		return w
	}

	if w := post(); w.Code != http.StatusCreated || w.Header().Get("X-Quota-Used") != "1/2" {
		t.Fatalf("first: code=%d used=%q", w.Code, w.Header().Get("X-Quota-Used"))
	}
	post()
	if w := post(); w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if ttl := mr.TTL("quota:test"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("quota key ttl = %v", ttl)
	}

	mr.FastForward(time.Hour + time.Second)
	if w := post(); w.Code != http.StatusCreated {
		t.Fatalf("after window: want 201, got %d", w.Code)
	}
}

func TestQuota_FailsOpenWithoutRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	s := gin.New()
	s.GET("/x", Quota(rdb, QuotaRule{
		Limit:  1,
		Window: time.Hour,
		KeyFn:  func(*gin.Context) string { return "quota:down" },
	}, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if w := get(s, "/x"); w.Code != http.StatusOK {
			t.Fatalf("call %d: want 200, got %d", i, w.Code)
		}
	}
}

func TestSubscribeQuotaKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/subscribe", nil)
	c.Request.RemoteAddr = "203.0.113.7:5555"

	key := SubscribeQuotaKey(c)
	want := "quota:subscribe:ip:203.0.113.7:" + time.Now().UTC().Format("20060102")
	if key != want {
		t.Fatalf("want %q, got %q", want, key)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	s := gin.New()
	s.Use(m.Middleware())
	s.GET("/events/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	get(s, "/events/a")
	get(s, "/events/b")
	get(s, "/nowhere")

	if n := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/events/:id", "404")); n != 2 {
		t.Fatalf("want 2 requests on the route template, got %v", n)
	}
	if n := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")); n != 1 {
		t.Fatalf("want 1 unmatched request, got %v", n)
	}

	m.ObserveSubscription("created")
	if n := testutil.ToFloat64(m.subscriptions.WithLabelValues("created")); n != 1 {
		t.Fatalf("subscription counter = %v", n)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveSubscription("created") // must not panic
}

func TestRecovery(t *testing.T) {
	for _, debug := range []bool{false, true} {
		s := gin.New()
		s.Use(Recovery(zap.NewNop(), debug))
		s.GET("/boom", func(*gin.Context) { panic("kaboom") })

		w := get(s, "/boom")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("want 500, got %d", w.Code)
		}
		if got := strings.Contains(w.Body.String(), "kaboom"); got != debug {
			t.Fatalf("debug=%v: detail leaked=%v body=%s", debug, got, w.Body.String())
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := gin.New()
	s.Use(SecurityHeaders(), RequestLogger(zap.NewNop()))
	s.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(s, "/x")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}
