package handler

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/starfire-ai/kbase/internal/pkg/response"
	"github.com/starfire-ai/kbase/internal/repo"
)

type StatusHandler struct {
	db         *sql.DB
	uploads    *repo.UploadRepo
	embeddings *repo.EmbeddingRepo
	storeType  string
	embedModel string
	started    time.Time
}

func NewStatusHandler(db *sql.DB, uploads *repo.UploadRepo, embeddings *repo.EmbeddingRepo, storeType string, embedModel string) *StatusHandler {
	return &StatusHandler{
		db:         db,
		uploads:    uploads,
		embeddings: embeddings,
		storeType:  storeType,
		embedModel: embedModel,
		started:    time.Now(),
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": nowTimestamp(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(h.started).Seconds(),
		"timestamp": nowTimestamp(),
	})
}

func (h *StatusHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	uploads, err := h.uploads.Count(ctx)
	if err != nil {
		handleError(c, err)
		return
	}
	indexed, err := h.embeddings.Count(ctx)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"status":      "ok",
		"blob_store":  h.storeType,
		"embed_model": h.embedModel,
		"uploads":     uploads,
		"indexed":     indexed,
		"timestamp":   nowTimestamp(),
	})
}
