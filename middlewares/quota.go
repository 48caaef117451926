package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type QuotaRule struct {
	Limit  int           // requests allowed per window
	Window time.Duration // counter lifetime, starts at the first request
	KeyFn  func(*gin.Context) string
}

// Quota counts requests per key in redis (INCR + EXPIRE on first hit) and answers
// 429 once the window's limit is spent. A redis outage lets requests through.
func Quota(rdb *redis.Client, rule QuotaRule, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rule.KeyFn(c)
		if key == "" || rule.Limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn("Quota counter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if n == 1 {
			_ = rdb.Expire(ctx, key, rule.Window).Err()
		}
		if int(n) > rule.Limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Usage quota exceeded. Please try again later.",
			})
			return
		}
		c.Header("X-Quota-Used", fmt.Sprintf("%d/%d", n, rule.Limit))
		c.Next()
	}
}

// SubscribeQuotaKey limits POST /subscribe per client IP per day.
func SubscribeQuotaKey(c *gin.Context) string {
	return "quota:subscribe:ip:" + c.ClientIP() + ":" + time.Now().UTC().Format("20060102")
}
