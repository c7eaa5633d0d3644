package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/ai"
	"github.com/starfire-ai/kbase/internal/model"
	"github.com/starfire-ai/kbase/internal/repo"
)

const reindexBatchSize = 50

// ReindexService backfills the vector index from upload records. Trigger is
// fire-and-forget; overlapping triggers collapse into the running pass.
type ReindexService struct {
	manager    *ai.Manager
	embeddings *repo.EmbeddingRepo
	running    atomic.Bool
}

func NewReindexService(manager *ai.Manager, embeddings *repo.EmbeddingRepo) *ReindexService {
	return &ReindexService{
		manager:    manager,
		embeddings: embeddings,
	}
}

// Trigger starts a background reindex pass. It returns immediately; failures
// are logged, never surfaced to the caller.
func (s *ReindexService) Trigger(reason string) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.running.Store(false)
		ctx := context.Background()
		logger := logutil.GetLogger(ctx).With(zap.String("reason", reason))
		logger.Info("background reindex started")
		if err := s.Run(ctx); err != nil {
			logger.Error("background reindex failed", zap.Error(err))
			return
		}
		logger.Info("background reindex complete")
	}()
}

// Run indexes every record missing an embedding, in batches.
func (s *ReindexService) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	for {
		records, err := s.embeddings.ListUnindexed(ctx, reindexBatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		for _, rec := range records {
			if err := s.indexRecord(ctx, &rec); err != nil {
				logger.Error("failed to index record",
					zap.String("object_key", rec.ObjectKey),
					zap.Error(err))
				return err
			}
		}
		if len(records) < reindexBatchSize {
			return nil
		}
	}
}

func (s *ReindexService) indexRecord(ctx context.Context, rec *model.UploadRecord) error {
	content := RecordContent(rec)
	hash := sha256.Sum256([]byte(content))
	emb, err := s.manager.Embed(ctx, content, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return err
	}
	return s.embeddings.Save(ctx, &model.RecordEmbedding{
		ObjectKey:   rec.ObjectKey,
		Version:     rec.Version,
		Embedding:   emb,
		ContentHash: hex.EncodeToString(hash[:]),
		Mtime:       time.Now().UnixMilli(),
	})
}
