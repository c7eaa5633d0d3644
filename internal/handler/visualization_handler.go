package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
	"github.com/starfire-ai/kbase/internal/pkg/response"
	"github.com/starfire-ai/kbase/internal/service"
)

type VisualizationHandler struct {
	visualizations *service.VisualizationService
}

func NewVisualizationHandler(visualizations *service.VisualizationService) *VisualizationHandler {
	return &VisualizationHandler{visualizations: visualizations}
}

// Generate returns the set projection; clients fetch the full chart payloads
// by id.
func (h *VisualizationHandler) Generate(c *gin.Context) {
	set, err := h.visualizations.Generate(c.Request.Context())
	if err != nil {
		rawError(c, http.StatusInternalServerError, "Failed to generate visualizations")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"visualizationSetId": set.ID,
		"title":              set.Title,
		"summary":            set.Summary,
		"visualizationCount": len(set.Visualizations),
		"createdAt":          set.CreatedAt,
		"metadata":           set.Metadata,
	})
}

func (h *VisualizationHandler) Get(c *gin.Context) {
	set, err := h.visualizations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if appErr.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Visualization set not found"})
			return
		}
		rawError(c, http.StatusInternalServerError, "Failed to retrieve visualization")
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *VisualizationHandler) List(c *gin.Context) {
	sets, err := h.visualizations.List(c.Request.Context())
	if err != nil {
		rawError(c, http.StatusInternalServerError, "Failed to list visualizations")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"visualizationSets": sets,
		"count":             len(sets),
	})
}

func (h *VisualizationHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.visualizations.Delete(c.Request.Context(), id); err != nil {
		if appErr.IsNotFound(err) {
			rawError(c, http.StatusNotFound, "Visualization set not found")
			return
		}
		rawError(c, http.StatusInternalServerError, "Failed to delete visualization")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Visualization set deleted successfully",
		"id":        id,
		"timestamp": nowTimestamp(),
	})
}

// ExportReport renders a stored set as an HTML report in the blob store.
func (h *VisualizationHandler) ExportReport(c *gin.Context) {
	objectKey, err := h.visualizations.ExportReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"object_key": objectKey})
}

// DownloadReport streams an exported report by the object key ExportReport
// returned.
func (h *VisualizationHandler) DownloadReport(c *gin.Context) {
	objectKey := strings.TrimPrefix(c.Param("key"), "/")
	body, err := h.visualizations.OpenReport(c.Request.Context(), "reports/"+objectKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
			return
		}
		rawError(c, http.StatusInternalServerError, "Failed to read report")
		return
	}
	defer body.Close()
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, body)
}
