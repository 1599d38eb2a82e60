package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware caps request throughput with a shared token
// bucket. The burst is double the sustained rate so a flurry of alerts
// right after an incident is not shed. Health checks and observer
// websocket upgrades bypass the bucket entirely; monitoring must never
// compete with alert traffic for tokens.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), 2*rps)

	return func(c *gin.Context) {
		switch c.FullPath() {
		case "/health", "/ws":
			c.Next()
			return
		}
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
