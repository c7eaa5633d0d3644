package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/pkg/errcode"
	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
	"github.com/starfire-ai/kbase/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case err == appErr.ErrUnauthorized:
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case err == appErr.ErrForbidden:
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case err == appErr.ErrNotFound:
		response.Error(c, errcode.ErrNotFound, "not found")
	case err == appErr.ErrInvalid:
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case err == appErr.ErrConflict:
		response.Error(c, errcode.ErrConflict, "conflict")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

// rawError writes a plain error body for the endpoints whose wire shape is
// fixed by their clients rather than the common envelope.
func rawError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error":     message,
		"timestamp": nowTimestamp(),
	})
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
