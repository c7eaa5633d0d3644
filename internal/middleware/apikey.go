package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/starfire-ai/kbase/internal/pkg/errcode"
	"github.com/starfire-ai/kbase/internal/pkg/response"
)

const APIKeyHeader = "x-api-key"

type apiKeyVerifier interface {
	VerifyAPIKey(key string) error
}

func APIKeyAuth(verifier apiKeyVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing api key")
			c.Abort()
			return
		}
		if err := verifier.VerifyAPIKey(key); err != nil {
			response.Error(c, errcode.ErrUnauthorized, "invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}
