package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const visitorIdle = 5 * time.Minute

// RequestLogger logs each request through logrus and records its metrics
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"route":     route,
			"status":    status,
			"latency":   elapsed.String(),
			"client_ip": c.ClientIP(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request served")
		} else {
			entry.Debug("request served")
		}
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles each client IP with its own token bucket
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor
	swept    time.Time
	clockNow func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per client
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

// Middleware rejects requests over the client's budget with 429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.obtainLimiter(c.ClientIP()).AllowN(r.clockNow(), 1) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   core.CodeRateLimited,
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clockNow()
	if now.Sub(r.swept) > visitorIdle {
		for key, v := range r.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(r.visitors, key)
			}
		}
		r.swept = now
	}

	v, ok := r.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter
}
