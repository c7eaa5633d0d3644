package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterHandle_BlocksWithinWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &rateLimiter{
		window: 10 * time.Second,
		last:   make(map[string]time.Time),
	}

	c1, _ := gin.CreateTestContext(httptest.NewRecorder())
	c1.Request = httptest.NewRequest("POST", "/api/v1/visualize/generate", nil)
	limiter.handle(c1)
	require.False(t, c1.IsAborted())

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest("POST", "/api/v1/visualize/generate", nil)
	limiter.handle(c2)
	require.True(t, c2.IsAborted())
}

func TestRateLimiterHandle_AllowsAfterWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &rateLimiter{
		window: 10 * time.Second,
		last:   make(map[string]time.Time),
	}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/api/v1/visualize/generate", nil)
	limiter.last[c.ClientIP()+"|/api/v1/visualize/generate"] = time.Now().Add(-20 * time.Second)

	limiter.handle(c)
	require.False(t, c.IsAborted())
}

func TestRateLimiterHandle_SweepsStaleEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &rateLimiter{
		window: 10 * time.Second,
		last:   make(map[string]time.Time),
	}
	limiter.last["10.0.0.1|/api/v1/visualize/generate"] = time.Now().Add(-time.Minute)
	limiter.last["10.0.0.2|/api/v1/visualize/generate"] = time.Now().Add(-time.Hour)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/api/v1/visualize/generate", nil)
	limiter.handle(c)
	require.False(t, c.IsAborted())

	// Only the live entry for this request survives the sweep.
	require.Len(t, limiter.last, 1)
	_, ok := limiter.last[c.ClientIP()+"|/api/v1/visualize/generate"]
	require.True(t, ok)
}

func TestRateLimiterHandle_ZeroWindowDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &rateLimiter{last: make(map[string]time.Time)}

	for i := 0; i < 3; i++ {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("POST", "/api/v1/visualize/generate", nil)
		limiter.handle(c)
		require.False(t, c.IsAborted())
	}
}
