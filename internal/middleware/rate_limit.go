package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"shopsync/pkg/log"
	"shopsync/pkg/utils"
)

// idleLimiterTTL bounds how long an idle client's limiter is retained
const idleLimiterTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiters struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	clients  map[string]*clientLimiter
	lastScan time.Time
}

func (l *ipLimiters) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastScan) > idleLimiterTTL {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > idleLimiterTTL {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// IPRateLimit limits each client IP to rps with the given burst.
func IPRateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = 1
	}
	limiters := &ipLimiters{
		rps:      rate.Limit(rps),
		burst:    burst,
		clients:  make(map[string]*clientLimiter),
		lastScan: time.Now(),
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if !limiters.get(key, time.Now()).Allow() {
			log.WithFields(log.Fields{
				"ip":     key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", "1")
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Too many requests", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
