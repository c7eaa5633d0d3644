package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	rendererhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/ai"
	"github.com/starfire-ai/kbase/internal/blobstore"
	"github.com/starfire-ai/kbase/internal/model"
	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
	"github.com/starfire-ai/kbase/internal/repo"
)

const (
	analysisQuery        = "healthcare data analysis life sciences commercial intelligence"
	analysisTopK         = 20
	analysisMetadataSize = 50
	documentSnippetLen   = 1000
)

type analysisRetriever interface {
	RetrieveN(ctx context.Context, query string, topK uint) ([]model.RetrievedDocument, error)
}

type VisualizationService struct {
	manager   *ai.Manager
	retriever analysisRetriever
	uploads   *repo.UploadRepo
	sets      *repo.VisualizationRepo
	store     blobstore.Store
	md        goldmark.Markdown
}

func NewVisualizationService(manager *ai.Manager, retriever analysisRetriever, uploads *repo.UploadRepo, sets *repo.VisualizationRepo, store blobstore.Store) *VisualizationService {
	return &VisualizationService{
		manager:   manager,
		retriever: retriever,
		uploads:   uploads,
		sets:      sets,
		store:     store,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(rendererhtml.WithUnsafe()),
		),
	}
}

// Generate analyzes the knowledge base and produces a stored set of four
// executive charts. An unusable model response degrades to a placeholder set
// rather than failing the request; a storage failure is logged and the set is
// still returned.
func (s *VisualizationService) Generate(ctx context.Context) (*model.VisualizationSet, error) {
	logger := logutil.GetLogger(ctx)
	start := time.Now()
	setID := uuid.NewString()

	docs, err := s.retriever.RetrieveN(ctx, analysisQuery, analysisTopK)
	if err != nil {
		logger.Error("knowledge base retrieval failed", zap.Error(err))
		return nil, err
	}
	metadata, err := s.uploads.ListRecent(ctx, analysisMetadataSize)
	if err != nil {
		logger.Error("failed to load file metadata", zap.Error(err))
		return nil, err
	}

	generated, err := s.manager.GenerateVisualizations(ctx, documentContent(docs), metadataContent(metadata))
	set := &model.VisualizationSet{
		ID:        setID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Metadata: model.VisualizationMetadata{
			DocumentsAnalyzed: len(docs),
			FilesReferenced:   len(metadata),
		},
	}
	if err != nil {
		logger.Warn("visualization generation failed, returning placeholder set", zap.Error(err))
		set.Title = "Healthcare Data Analysis"
		set.Description = "Automated analysis of healthcare data from knowledge base"
		set.Summary = "Analysis could not be completed successfully"
		set.Visualizations = []model.Visualization{placeholderVisualization()}
	} else {
		set.Title = generated.Title
		set.Description = generated.Description
		set.Summary = generated.Summary
		set.Visualizations = generated.Visualizations
		for i := range set.Visualizations {
			if set.Visualizations[i].ID == "" {
				set.Visualizations[i].ID = fmt.Sprintf("viz-%d", i+1)
			}
		}
	}
	set.Metadata.ProcessingTime = time.Since(start).Milliseconds()

	if err := s.sets.Create(ctx, set); err != nil {
		// The generated set is still useful without persistence.
		logger.Error("failed to store visualization set", zap.Error(err))
	}
	return set, nil
}

func (s *VisualizationService) Get(ctx context.Context, id string) (*model.VisualizationSet, error) {
	return s.sets.Get(ctx, id)
}

func (s *VisualizationService) List(ctx context.Context) ([]model.VisualizationSetSummary, error) {
	sets, err := s.sets.List(ctx)
	if err != nil {
		return nil, err
	}
	if sets == nil {
		sets = []model.VisualizationSetSummary{}
	}
	return sets, nil
}

func (s *VisualizationService) Delete(ctx context.Context, id string) error {
	return s.sets.Delete(ctx, id)
}

// ExportReport renders a set as a standalone HTML report and writes it to the
// blob store. The object key of the stored report is returned.
func (s *VisualizationService) ExportReport(ctx context.Context, id string) (string, error) {
	set, err := s.sets.Get(ctx, id)
	if err != nil {
		return "", err
	}
	var body bytes.Buffer
	if err := s.md.Convert([]byte(reportMarkdown(set)), &body); err != nil {
		return "", err
	}
	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title></head>
<body>
%s</body>
</html>
`, set.Title, body.String())
	objectKey := fmt.Sprintf("reports/%s/%s.html", time.Now().UTC().Format("2006-01-02"), set.ID)
	if err := s.store.Save(ctx, objectKey, strings.NewReader(page), int64(len(page)), "text/html"); err != nil {
		return "", err
	}
	logutil.GetLogger(ctx).Info("report exported",
		zap.String("set_id", set.ID),
		zap.String("object_key", objectKey))
	return objectKey, nil
}

// OpenReport streams a previously exported report back out of the blob
// store. Keys outside the reports prefix are treated as unknown.
func (s *VisualizationService) OpenReport(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	if !strings.HasPrefix(objectKey, "reports/") || strings.Contains(objectKey, "..") {
		return nil, appErr.ErrNotFound
	}
	body, err := s.store.Open(ctx, objectKey)
	if err != nil {
		logutil.GetLogger(ctx).Warn("report not readable",
			zap.String("object_key", objectKey), zap.Error(err))
		return nil, appErr.ErrNotFound
	}
	return body, nil
}

func reportMarkdown(set *model.VisualizationSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n**Summary:** %s\n\n", set.Title, set.Description, set.Summary)
	fmt.Fprintf(&b, "_Generated %s from %d documents and %d files._\n\n",
		set.CreatedAt, set.Metadata.DocumentsAnalyzed, set.Metadata.FilesReferenced)
	for _, viz := range set.Visualizations {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", viz.Title, viz.Description)
		if len(viz.Insights) > 0 {
			b.WriteString("### Insights\n\n")
			for _, insight := range viz.Insights {
				fmt.Fprintf(&b, "- %s\n", insight)
			}
			b.WriteString("\n")
		}
		if len(viz.Recommendations) > 0 {
			b.WriteString("### Recommendations\n\n")
			for _, rec := range viz.Recommendations {
				fmt.Fprintf(&b, "- %s\n", rec)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func documentContent(docs []model.RetrievedDocument) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		title := "Untitled"
		if t, ok := doc.Metadata["title"].(string); ok && t != "" {
			title = t
		}
		content := doc.Content
		if len(content) > documentSnippetLen {
			content = content[:documentSnippetLen]
		}
		parts = append(parts, fmt.Sprintf("Document: %s\n%s", title, content))
	}
	return strings.Join(parts, "\n\n")
}

func metadataContent(records []model.UploadRecord) string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		topics := "N/A"
		if len(rec.KeyTopics) > 0 {
			topics = strings.Join(rec.KeyTopics, ", ")
		}
		summary := rec.Summary
		if summary == "" {
			summary = "No summary available"
		}
		lines = append(lines, fmt.Sprintf("File: %s, Type: %s, Topics: %s, Summary: %s",
			rec.Name, rec.Type, topics, summary))
	}
	return strings.Join(lines, "\n")
}

func placeholderVisualization() model.Visualization {
	return model.Visualization{
		ID:          "fallback-1",
		Title:       "Data Analysis Error",
		Description: "Visualization could not be generated",
		Insights:    []string{"Data analysis could not be completed", "Please try again later"},
		ChartType:   model.ChartTypeBar,
		ChartData: model.ChartData{
			Labels: []string{"No Data Available"},
			Datasets: []model.ChartDataset{{
				Label:           "No Data",
				Data:            []interface{}{0},
				BackgroundColor: []string{"#e0e0e0"},
			}},
		},
		Recommendations: []string{"Try again later"},
	}
}
