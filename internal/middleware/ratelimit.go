package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
)

// RateLimiter is a fixed-window limiter kept in Redis so every instance
// shares the same budget. Requests are keyed by student when claims are
// present, by client IP otherwise.
type RateLimiter struct {
	rdb      *redis.Client
	log      zerolog.Logger
	rate     int
	interval time.Duration
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute).
func NewRateLimiter(rdb *redis.Client, rate int, interval time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:      rdb,
		log:      log.With().Str("component", "rate_limiter").Logger(),
		rate:     rate,
		interval: interval,
	}
}

// Middleware returns a Gin middleware that rejects requests over budget.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}

		key := rl.key(c, time.Now())
		ctx := c.Request.Context()

		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.interval)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		if incr.Val() > int64(rl.rate) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) key(c *gin.Context, now time.Time) string {
	window := now.UnixNano() / int64(rl.interval)
	if s, ok := StudentFrom(c); ok {
		return fmt.Sprintf("ratelimit:student:%d:%d", s.ID, window)
	}
	return fmt.Sprintf("ratelimit:ip:%s:%d", c.ClientIP(), window)
}
