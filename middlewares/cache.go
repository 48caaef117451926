package middlewares

import (
	"bytes"
	"encoding/gob"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"eventsapi/models"
	"eventsapi/utils"
)

type cachedBody struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// CacheKeyFrom returns the redis key for a cacheable request and its namespace
// (item, list or stats). Non-GET requests and unmatched routes are never cached.
func CacheKeyFrom(c *gin.Context) (string, string) {
	path := c.FullPath() // route template, e.g. /events/:id
	if c.Request.Method != "GET" || path == "" {
		return "", ""
	}

	switch {
	case path == "/events/upcoming" || path == "/events/stats":
		// both depend on the current time, not only on stored data
		return "", ""
	case path == "/events/:id":
		// canonical hex, the form PurgeEventItem deletes
		oid, err := models.ParseEventID(c.Param("id"))
		if err != nil {
			return "", ""
		}
		return utils.EventItemKey(oid.Hex()), "item"
	case path == "/events" || strings.HasPrefix(path, "/events/"):
		// the concrete path, so /events/search and /events/source/x do not share a key
		return utils.EventsListKey(c.Request.URL.Path, c.Request.URL.RawQuery), "list"
	case path == "/subscribe/stats":
		return utils.SubscriptionStatsKey, "stats"
	default:
		return "", ""
	}
}

const ttlCapKey = "cache.ttl_cap"

// CapCacheTTL bounds how long the response being written may stay cached. A cap of
// zero or less keeps it out of the cache. The smallest cap set wins.
func CapCacheTTL(c *gin.Context, d time.Duration) {
	if cur, ok := c.Get(ttlCapKey); ok && cur.(time.Duration) <= d {
		return
	}
	c.Set(ttlCapKey, d)
}

func effectiveTTL(c *gin.Context, ttl time.Duration) time.Duration {
	if v, ok := c.Get(ttlCapKey); ok {
		if capped := v.(time.Duration); capped < ttl {
			return capped
		}
	}
	return ttl
}

// ResponseCache serves cached 2xx GET responses from redis and stores misses for ttl.
// Redis failures degrade to an uncached request.
func ResponseCache(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, _ := CacheKeyFrom(c)
		if key == "" || ttl <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if b, err := rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			var hit cachedBody
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
				for k, vals := range hit.Header {
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Status(hit.Status)
				_, _ = c.Writer.Write(hit.Body)
				c.Abort()
				return
			}
		}

		buf := &bytes.Buffer{}
		bw := &bufferedWriter{ResponseWriter: c.Writer, buf: buf}
		c.Writer = bw
		// set before the handler writes, otherwise the header is already flushed
		c.Writer.Header().Set("X-Cache", "MISS")

		c.Next()

		keep := effectiveTTL(c, ttl)
		if keep > 0 && bw.Status() >= 200 && bw.Status() < 300 {
			header := map[string][]string{}
			for k, v := range c.Writer.Header() {
				if k == "X-Cache" {
					continue
				}
				header[k] = v
			}
			item := cachedBody{
				Status: bw.Status(),
				Header: header,
				Body:   buf.Bytes(),
			}
			var o bytes.Buffer
			if err := gob.NewEncoder(&o).Encode(item); err == nil {
				_ = rdb.Set(ctx, key, o.Bytes(), keep).Err()
			}
		}
	}
}

type bufferedWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
