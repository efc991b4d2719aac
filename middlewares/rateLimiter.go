package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"github.com/gin-gonic/gin"
)

type RateLimiter struct {
	limit  int64
	window time.Duration
}

func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client ip in a fixed window kept in
// redis. Without redis the request is let through.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	if config.GetRedisDB() == nil {
		c.Next()
		return
	}
	key := "rl:ip:" + c.ClientIP()

	count, err := config.IncrRedisWindow(c.Request.Context(), key, rl.window)
	if err != nil {
		config.LogError(config.GetLogger(), "middlewares", "RateLimitMiddleware", "redis incr", key, err)
		c.Next()
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
