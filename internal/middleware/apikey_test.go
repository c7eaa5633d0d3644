package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
)

type stubVerifier struct {
	accept string
}

func (s *stubVerifier) VerifyAPIKey(key string) error {
	if key == s.accept {
		return nil
	}
	return appErr.ErrUnauthorized
}

func newAPIKeyRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth(&stubVerifier{accept: "valid-key"}))
	router.GET("/protected", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	router := newAPIKeyRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(APIKeyHeader, "valid-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	router := newAPIKeyRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	// Envelope failures ride on a 200 with the error code in the body.
	require.NotContains(t, w.Body.String(), "ok")
	require.Contains(t, w.Body.String(), "missing api key")
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	router := newAPIKeyRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(APIKeyHeader, "wrong-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.NotContains(t, w.Body.String(), "ok")
	require.Contains(t, w.Body.String(), "invalid api key")
}
