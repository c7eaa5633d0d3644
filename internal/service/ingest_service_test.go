package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starfire-ai/kbase/internal/model"
	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
)

type memBlobStore struct {
	saved map[string]string
	fail  map[string]error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{saved: map[string]string{}, fail: map[string]error{}}
}

func (m *memBlobStore) Type() string   { return "memory" }
func (m *memBlobStore) Bucket() string { return "test-bucket" }

func (m *memBlobStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	for name, err := range m.fail {
		if strings.HasSuffix(key, "/"+name) {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.saved[key] = string(data)
	return nil
}

func (m *memBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.saved[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

type memUploadStore struct {
	created   []model.UploadRecord
	createErr map[string]error
	listed    []model.UploadRecord
	total     int64
	gotLimit  uint
	gotOffset uint
}

func (m *memUploadStore) Create(ctx context.Context, rec *model.UploadRecord) error {
	if err := m.createErr[rec.Name]; err != nil {
		return err
	}
	m.created = append(m.created, *rec)
	return nil
}

func (m *memUploadStore) Get(ctx context.Context, objectKey, version string) (*model.UploadRecord, error) {
	for i := range m.created {
		if m.created[i].ObjectKey == objectKey && m.created[i].Version == version {
			return &m.created[i], nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memUploadStore) List(ctx context.Context, limit, offset uint) ([]model.UploadRecord, error) {
	m.gotLimit = limit
	m.gotOffset = offset
	return m.listed, nil
}

func (m *memUploadStore) Count(ctx context.Context) (int64, error) {
	return m.total, nil
}

type stubAnalyzer struct {
	analysis *model.FileAnalysis
	err      error
	calls    int
}

func (s *stubAnalyzer) AnalyzeFile(ctx context.Context, name string, contentType string, size int64) (*model.FileAnalysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.analysis, nil
}

type stubTrigger struct {
	reasons []string
}

func (s *stubTrigger) Trigger(reason string) {
	s.reasons = append(s.reasons, reason)
}

func ingestFile(name string, body string) IngestFile {
	return IngestFile{
		Name:        name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func TestProcessBatchAllSuccessful(t *testing.T) {
	store := newMemBlobStore()
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{analysis: &model.FileAnalysis{
		Type:               "Commercial Dataset",
		Summary:            "sales numbers",
		KeyTopics:          []string{"sales"},
		DataClassification: "Commercial Data",
	}}
	trigger := &stubTrigger{}
	svc := NewIngestService(store, uploads, analyzer, trigger, 0)

	result, err := svc.ProcessBatch(context.Background(), []IngestFile{
		ingestFile("a.csv", "1,2,3"),
		ingestFile("b.csv", "4,5,6"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Total)
	require.Equal(t, 2, result.Success)
	require.Equal(t, 0, result.Failed)
	require.Empty(t, result.Errors)
	require.Len(t, result.Files, 2)

	datePrefix := fmt.Sprintf("uploads/%s/", time.Now().UTC().Format("2006-01-02"))
	require.Equal(t, datePrefix+"a.csv", result.Files[0].ObjectKey)
	require.Equal(t, "test-bucket", result.Files[0].Bucket)
	require.Equal(t, "Commercial Dataset", result.Files[0].Type)
	require.NotEmpty(t, result.Files[0].ID)
	require.Contains(t, store.saved, datePrefix+"b.csv")
	require.Len(t, uploads.created, 2)
}

func TestProcessBatchPartialFailure(t *testing.T) {
	store := newMemBlobStore()
	store.fail["bad.pdf"] = errors.New("bucket write denied")
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{analysis: &model.FileAnalysis{Type: "t", KeyTopics: []string{}}}
	trigger := &stubTrigger{}
	svc := NewIngestService(store, uploads, analyzer, trigger, 0)

	result, err := svc.ProcessBatch(context.Background(), []IngestFile{
		ingestFile("bad.pdf", "x"),
		ingestFile("good.pdf", "y"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "bad.pdf: bucket write denied", result.Errors[0])
	require.Len(t, result.Files, 1)
	require.Equal(t, "good.pdf", result.Files[0].Name)
}

func TestProcessBatchAllFailed(t *testing.T) {
	store := newMemBlobStore()
	store.fail["a.pdf"] = errors.New("boom")
	store.fail["b.pdf"] = errors.New("boom")
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{}
	trigger := &stubTrigger{}
	svc := NewIngestService(store, uploads, analyzer, trigger, 0)

	result, err := svc.ProcessBatch(context.Background(), []IngestFile{
		ingestFile("a.pdf", "x"),
		ingestFile("b.pdf", "y"),
	})
	require.ErrorIs(t, err, appErr.ErrBatchFailed)
	require.NotNil(t, result)
	require.Equal(t, 0, result.Success)
	require.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	require.Empty(t, trigger.reasons)
}

func TestProcessBatchEmpty(t *testing.T) {
	svc := NewIngestService(newMemBlobStore(), &memUploadStore{}, &stubAnalyzer{}, &stubTrigger{}, 0)
	_, err := svc.ProcessBatch(context.Background(), nil)
	require.ErrorIs(t, err, appErr.ErrNoFiles)
}

func TestProcessBatchTriggersReindexOnce(t *testing.T) {
	store := newMemBlobStore()
	store.fail["first.pdf"] = errors.New("boom")
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{analysis: &model.FileAnalysis{Type: "t", KeyTopics: []string{}}}
	trigger := &stubTrigger{}
	svc := NewIngestService(store, uploads, analyzer, trigger, 0)

	_, err := svc.ProcessBatch(context.Background(), []IngestFile{
		ingestFile("first.pdf", "x"),
		ingestFile("second.pdf", "y"),
		ingestFile("third.pdf", "z"),
	})
	require.NoError(t, err)
	// The trigger fires after the first blob is stored, not per file.
	require.Len(t, trigger.reasons, 1)
	require.Contains(t, trigger.reasons[0], "3 files")
}

func TestProcessBatchAnalyzerFallback(t *testing.T) {
	store := newMemBlobStore()
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{err: errors.New("model overloaded")}
	trigger := &stubTrigger{}
	svc := NewIngestService(store, uploads, analyzer, trigger, 0)

	result, err := svc.ProcessBatch(context.Background(), []IngestFile{
		ingestFile("quarterly_mup_report.xlsx", "data"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, "Market Access Analysis", result.Files[0].Type)
	require.NotNil(t, result.Files[0].KeyTopics)
}

func TestProcessBatchCachesAnalysis(t *testing.T) {
	store := newMemBlobStore()
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{analysis: &model.FileAnalysis{Type: "t", KeyTopics: []string{}}}
	trigger := &stubTrigger{}
	svc := NewIngestService(store, uploads, analyzer, trigger, 0)

	_, err := svc.ProcessBatch(context.Background(), []IngestFile{ingestFile("same.csv", "a")})
	require.NoError(t, err)
	_, err = svc.ProcessBatch(context.Background(), []IngestFile{ingestFile("same.csv", "a")})
	require.NoError(t, err)
	require.Equal(t, 1, analyzer.calls)
}

func TestFallbackAnalysis(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		wantType    string
	}{
		{name: "mup filename", filename: "2024_MUP_summary.xlsx", contentType: "application/vnd.ms-excel", wantType: "Market Access Analysis"},
		{name: "dpr filename", filename: "dpr_q3.csv", contentType: "text/csv", wantType: "Market Access Analysis"},
		{name: "prescription filename", filename: "Prescription_trends.pdf", contentType: "application/pdf", wantType: "Physician Profiling Report"},
		{name: "rx filename", filename: "rx_volume.csv", contentType: "text/csv", wantType: "Physician Profiling Report"},
		{name: "clinical filename", filename: "clinical_outcomes.pdf", contentType: "application/pdf", wantType: "HEOR Evidence Package"},
		{name: "trial filename", filename: "Trial-Results.docx", contentType: "application/msword", wantType: "HEOR Evidence Package"},
		{name: "pdf mimetype", filename: "report.pdf", contentType: "application/pdf", wantType: "Commercial Intelligence Report"},
		{name: "spreadsheet mimetype", filename: "numbers.xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", wantType: "Commercial Data Analysis"},
		{name: "csv mimetype", filename: "data.csv", contentType: "text/csv", wantType: "Commercial Dataset"},
		{name: "unknown", filename: "notes.txt", contentType: "text/plain", wantType: "Commercial Document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackAnalysis(tt.filename, tt.contentType)
			require.Equal(t, tt.wantType, got.Type)
			require.NotEmpty(t, got.Summary)
			require.NotEmpty(t, got.KeyTopics)
			require.NotEmpty(t, got.DataClassification)
		})
	}
}

func TestListUploadsClampsPaging(t *testing.T) {
	uploads := &memUploadStore{listed: []model.UploadRecord{{Name: "a"}}, total: 1}
	svc := NewIngestService(newMemBlobStore(), uploads, &stubAnalyzer{}, &stubTrigger{}, 0)

	records, total, err := svc.ListUploads(context.Background(), 0, 500)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	require.Equal(t, uint(100), uploads.gotLimit)
	require.Equal(t, uint(0), uploads.gotOffset)

	_, _, err = svc.ListUploads(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Equal(t, uint(20), uploads.gotLimit)
	require.Equal(t, uint(40), uploads.gotOffset)
}

func TestListUploadsNeverNil(t *testing.T) {
	uploads := &memUploadStore{listed: nil, total: 0}
	svc := NewIngestService(newMemBlobStore(), uploads, &stubAnalyzer{}, &stubTrigger{}, 0)

	records, total, err := svc.ListUploads(context.Background(), 1, 20)
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
	require.Zero(t, total)
}

func TestGetUploadDefaultsVersion(t *testing.T) {
	store := newMemBlobStore()
	uploads := &memUploadStore{}
	analyzer := &stubAnalyzer{err: errors.New("model down")}
	svc := NewIngestService(store, uploads, analyzer, &stubTrigger{}, 0)

	_, err := svc.ProcessBatch(context.Background(), []IngestFile{ingestFile("a.csv", "x")})
	require.NoError(t, err)
	require.Len(t, uploads.created, 1)

	rec, err := svc.GetUpload(context.Background(), uploads.created[0].ObjectKey, "")
	require.NoError(t, err)
	require.Equal(t, "a.csv", rec.Name)

	_, err = svc.GetUpload(context.Background(), "uploads/unknown", "")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
