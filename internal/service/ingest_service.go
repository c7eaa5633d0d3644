package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/blobstore"
	"github.com/starfire-ai/kbase/internal/model"
	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
)

// IngestFile is one file of an ingest batch. Open returns a fresh reader for
// the file body.
type IngestFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// ReindexTrigger requests an index refresh. Implementations must not block.
type ReindexTrigger interface {
	Trigger(reason string)
}

type uploadStore interface {
	Create(ctx context.Context, rec *model.UploadRecord) error
	Get(ctx context.Context, objectKey, version string) (*model.UploadRecord, error)
	List(ctx context.Context, limit, offset uint) ([]model.UploadRecord, error)
	Count(ctx context.Context) (int64, error)
}

type fileAnalyzer interface {
	AnalyzeFile(ctx context.Context, name string, contentType string, size int64) (*model.FileAnalysis, error)
}

type IngestService struct {
	store     blobstore.Store
	uploads   uploadStore
	manager   fileAnalyzer
	reindexer ReindexTrigger
	cache     *expirable.LRU[string, model.FileAnalysis]
}

func NewIngestService(store blobstore.Store, uploads uploadStore, manager fileAnalyzer, reindexer ReindexTrigger, cacheEntries int) *IngestService {
	if cacheEntries <= 0 {
		cacheEntries = 10000
	}
	cache := expirable.NewLRU[string, model.FileAnalysis](cacheEntries, nil, 2*time.Hour)
	return &IngestService{
		store:     store,
		uploads:   uploads,
		manager:   manager,
		reindexer: reindexer,
		cache:     cache,
	}
}

// ProcessBatch ingests every file of one request sequentially. A failing file
// is recorded and skipped; the batch keeps going. The reindex trigger fires
// at most once per batch, after the first successful blob write. When every
// file fails the batch error is returned alongside the result.
func (s *IngestService) ProcessBatch(ctx context.Context, files []IngestFile) (*model.BatchResult, error) {
	if len(files) == 0 {
		return nil, appErr.ErrNoFiles
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("files", len(files)))
	logger.Info("starting batch ingestion")

	result := &model.BatchResult{
		Total: len(files),
	}
	syncTriggered := false
	for i, file := range files {
		rec, err := s.processFile(ctx, &file, &syncTriggered, len(files))
		if err != nil {
			logger.Error("file processing failed",
				zap.Int("index", i+1),
				zap.String("name", file.Name),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.Name, err))
			result.Failed++
			continue
		}
		result.Files = append(result.Files, *rec)
		result.Success++
	}
	logger.Info("batch ingestion complete",
		zap.Int("successful", result.Success),
		zap.Int("failed", result.Failed))
	if result.Success == 0 {
		return result, appErr.ErrBatchFailed
	}
	return result, nil
}

func (s *IngestService) processFile(ctx context.Context, file *IngestFile, syncTriggered *bool, batchSize int) (*model.UploadRecord, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339)
	objectKey := fmt.Sprintf("uploads/%s/%s", now.Format("2006-01-02"), file.Name)

	body, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer body.Close()
	if err := s.store.Save(ctx, objectKey, body, file.Size, file.ContentType); err != nil {
		return nil, err
	}

	// One refresh per batch, fired after the first blob lands so the indexer
	// has something to pick up. Failures stay in the background.
	if !*syncTriggered {
		*syncTriggered = true
		s.reindexer.Trigger(fmt.Sprintf("%d files starting at %s", batchSize, timestamp))
	}

	analysis := s.analyzeFile(ctx, file)
	rec := &model.UploadRecord{
		ID:                 uuid.NewString(),
		Version:            "1",
		Name:               file.Name,
		Type:               analysis.Type,
		Size:               file.Size,
		Summary:            analysis.Summary,
		KeyTopics:          analysis.KeyTopics,
		DataClassification: analysis.DataClassification,
		UploadTimestamp:    timestamp,
		ObjectKey:          objectKey,
		Bucket:             s.store.Bucket(),
		ContentType:        file.ContentType,
		LastModified:       timestamp,
	}
	if err := s.uploads.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// analyzeFile never fails: a model error or unparseable response falls back
// to deterministic classification.
func (s *IngestService) analyzeFile(ctx context.Context, file *IngestFile) *model.FileAnalysis {
	cacheKey := analysisCacheKey(file)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return &cached
	}
	analysis, err := s.manager.AnalyzeFile(ctx, file.Name, file.ContentType, file.Size)
	if err != nil {
		logutil.GetLogger(ctx).Warn("analysis failed, using fallback classification",
			zap.String("name", file.Name), zap.Error(err))
		analysis = FallbackAnalysis(file.Name, file.ContentType)
	}
	if analysis.KeyTopics == nil {
		analysis.KeyTopics = []string{}
	}
	s.cache.Add(cacheKey, *analysis)
	return analysis
}

func analysisCacheKey(file *IngestFile) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", file.Name, file.ContentType, file.Size)))
	return hex.EncodeToString(sum[:])
}

// FallbackAnalysis classifies a file from its name and content type alone.
func FallbackAnalysis(name string, contentType string) *model.FileAnalysis {
	filename := strings.ToLower(name)
	switch {
	case strings.Contains(filename, "mup") || strings.Contains(filename, "dpr"):
		return &model.FileAnalysis{
			Type:               "Market Access Analysis",
			Summary:            "Enables pricing strategy optimization through Medicare Utilization and Payment (MUP) data analysis, supporting payor negotiations and access decisions.",
			KeyTopics:          []string{"market access", "pricing strategy", "payor intelligence", "utilization data"},
			DataClassification: "Market Access Intelligence",
		}
	case strings.Contains(filename, "prescription") || strings.Contains(filename, "rx"):
		return &model.FileAnalysis{
			Type:               "Physician Profiling Report",
			Summary:            "Supports targeting and engagement strategy through prescription behavior analysis, enabling sales force optimization and HCP segmentation.",
			KeyTopics:          []string{"physician profiling", "prescribing patterns", "targeting strategy", "sales optimization"},
			DataClassification: "Commercial Analytics",
		}
	case strings.Contains(filename, "clinical") || strings.Contains(filename, "trial"):
		return &model.FileAnalysis{
			Type:               "HEOR Evidence Package",
			Summary:            "Provides clinical evidence for market access and pricing negotiations, supporting value proposition development and payor discussions.",
			KeyTopics:          []string{"HEOR", "clinical evidence", "value proposition", "payor negotiations"},
			DataClassification: "HEOR Evidence",
		}
	}
	mimetype := strings.ToLower(contentType)
	switch {
	case strings.Contains(mimetype, "pdf"):
		return &model.FileAnalysis{
			Type:               "Commercial Intelligence Report",
			Summary:            "Supports business decision-making through structured commercial data analysis and strategic insights in report format.",
			KeyTopics:          []string{"commercial intelligence", "business insights", "strategic analysis"},
			DataClassification: "Commercial Analytics",
		}
	case strings.Contains(mimetype, "excel") || strings.Contains(mimetype, "spreadsheet"):
		return &model.FileAnalysis{
			Type:               "Commercial Data Analysis",
			Summary:            "Enables quantitative analysis and modeling for commercial strategy development through structured dataset.",
			KeyTopics:          []string{"commercial modeling", "data analysis", "strategy development"},
			DataClassification: "Commercial Analytics",
		}
	case strings.Contains(mimetype, "csv"):
		return &model.FileAnalysis{
			Type:               "Commercial Dataset",
			Summary:            "Provides structured commercial data for analytics, forecasting, and business intelligence applications.",
			KeyTopics:          []string{"commercial data", "business intelligence", "analytics"},
			DataClassification: "Commercial Data",
		}
	}
	return &model.FileAnalysis{
		Type:               "Commercial Document",
		Summary:            fmt.Sprintf("Supports commercial intelligence analysis: %s", name),
		KeyTopics:          []string{"commercial analytics"},
		DataClassification: "Commercial Data",
	}
}

// GetUpload looks up one ingested record. An empty version means the initial
// record of that key.
func (s *IngestService) GetUpload(ctx context.Context, objectKey string, version string) (*model.UploadRecord, error) {
	if version == "" {
		version = "1"
	}
	return s.uploads.Get(ctx, objectKey, version)
}

// ListUploads returns one page of ingested records, newest first.
func (s *IngestService) ListUploads(ctx context.Context, page int, pageCount int) ([]model.UploadRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageCount <= 0 {
		pageCount = 20
	}
	if pageCount > 100 {
		pageCount = 100
	}
	offset := uint(page-1) * uint(pageCount)
	records, err := s.uploads.List(ctx, uint(pageCount), offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.uploads.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if records == nil {
		records = []model.UploadRecord{}
	}
	return records, total, nil
}
