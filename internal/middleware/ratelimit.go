package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/pkg/errcode"
	"github.com/starfire-ai/kbase/internal/pkg/response"
)

type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	last      map[string]time.Time
	lastSweep time.Time
}

// RateLimit allows one request per window per client+path pair.
func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		window: window,
		last:   make(map[string]time.Time),
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, path}, "|")

	now := time.Now()
	l.mu.Lock()
	last, exists := l.last[key]
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	// Expired entries are swept at most once per window so the map stays
	// bounded by the set of clients seen within it.
	if now.Sub(l.lastSweep) >= l.window {
		for k, ts := range l.last {
			if now.Sub(ts) >= l.window {
				delete(l.last, k)
			}
		}
		l.lastSweep = now
	}
	l.last[key] = now
	l.mu.Unlock()
	c.Next()
}
