package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/ai"
	"github.com/starfire-ai/kbase/internal/model"
	"github.com/starfire-ai/kbase/internal/repo"
)

type RetrievalService struct {
	manager    *ai.Manager
	embeddings *repo.EmbeddingRepo
	topK       uint
}

func NewRetrievalService(manager *ai.Manager, embeddings *repo.EmbeddingRepo, topK int) *RetrievalService {
	if topK <= 0 {
		topK = 3
	}
	return &RetrievalService{
		manager:    manager,
		embeddings: embeddings,
		topK:       uint(topK),
	}
}

// Retrieve embeds the query and returns the closest indexed records as
// retrieval documents.
func (s *RetrievalService) Retrieve(ctx context.Context, query string) ([]model.RetrievedDocument, error) {
	return s.RetrieveN(ctx, query, s.topK)
}

// RetrieveN is Retrieve with an explicit result width, for callers that need
// a broader sweep than the configured default.
func (s *RetrievalService) RetrieveN(ctx context.Context, query string, topK uint) ([]model.RetrievedDocument, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("query", query))
	queryEmb, err := s.manager.Embed(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		logger.Error("failed to embed query", zap.Error(err))
		return nil, err
	}
	records, err := s.embeddings.Search(ctx, queryEmb, topK)
	if err != nil {
		logger.Error("vector search failed", zap.Error(err))
		return nil, err
	}
	docs := make([]model.RetrievedDocument, 0, len(records))
	for _, rec := range records {
		docs = append(docs, model.RetrievedDocument{
			Content: RecordContent(&rec),
			Metadata: map[string]interface{}{
				"title":          rec.Name,
				"type":           rec.Type,
				"s3_key":         rec.ObjectKey,
				"classification": rec.DataClassification,
			},
		})
	}
	logger.Debug("retrieval complete", zap.Int("documents", len(docs)))
	return docs, nil
}

// RecordContent renders a record's searchable text. The same rendering feeds
// both indexing and retrieval so distances stay comparable.
func RecordContent(rec *model.UploadRecord) string {
	parts := []string{rec.Name, rec.Summary}
	if len(rec.KeyTopics) > 0 {
		parts = append(parts, strings.Join(rec.KeyTopics, ", "))
	}
	return strings.Join(parts, "\n")
}
