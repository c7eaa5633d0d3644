package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/starfire-ai/kbase/internal/model"
	"github.com/starfire-ai/kbase/internal/pkg/dbutil"
	appErr "github.com/starfire-ai/kbase/internal/pkg/errors"
)

var uploadColumns = []string{
	"object_key", "version", "id", "name", "type", "size", "summary",
	"key_topics", "data_classification", "upload_timestamp", "bucket",
	"content_type", "last_modified",
}

type UploadRepo struct {
	db *sql.DB
}

func NewUploadRepo(db *sql.DB) *UploadRepo {
	return &UploadRepo{db: db}
}

func (r *UploadRepo) Create(ctx context.Context, rec *model.UploadRecord) error {
	// Empty topic lists are stored as NULL and read back as empty.
	var topics interface{}
	if len(rec.KeyTopics) > 0 {
		blob, err := json.Marshal(rec.KeyTopics)
		if err != nil {
			return err
		}
		topics = blob
	}
	data := map[string]interface{}{
		"object_key":          rec.ObjectKey,
		"version":             rec.Version,
		"id":                  rec.ID,
		"name":                rec.Name,
		"type":                rec.Type,
		"size":                rec.Size,
		"summary":             rec.Summary,
		"key_topics":          topics,
		"data_classification": rec.DataClassification,
		"upload_timestamp":    rec.UploadTimestamp,
		"bucket":              rec.Bucket,
		"content_type":        rec.ContentType,
		"last_modified":       rec.LastModified,
	}
	sqlStr, args, err := builder.BuildInsert("upload_records", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UploadRepo) Get(ctx context.Context, objectKey, version string) (*model.UploadRecord, error) {
	where := map[string]interface{}{
		"object_key": objectKey,
		"version":    version,
	}
	sqlStr, args, err := builder.BuildSelect("upload_records", where, uploadColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanUpload(rows)
}

// List returns one page of records ordered newest first.
func (r *UploadRepo) List(ctx context.Context, limit, offset uint) ([]model.UploadRecord, error) {
	where := map[string]interface{}{
		"_orderby": "upload_timestamp desc",
		"_limit":   []uint{offset, limit},
	}
	sqlStr, args, err := builder.BuildSelect("upload_records", where, uploadColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.UploadRecord
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

func (r *UploadRepo) Count(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_records`)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListRecent returns the newest records for analysis, capped at limit.
func (r *UploadRepo) ListRecent(ctx context.Context, limit uint) ([]model.UploadRecord, error) {
	return r.List(ctx, limit, 0)
}

func scanUpload(rows *sql.Rows) (*model.UploadRecord, error) {
	var rec model.UploadRecord
	var topics []byte
	if err := rows.Scan(
		&rec.ObjectKey,
		&rec.Version,
		&rec.ID,
		&rec.Name,
		&rec.Type,
		&rec.Size,
		&rec.Summary,
		&topics,
		&rec.DataClassification,
		&rec.UploadTimestamp,
		&rec.Bucket,
		&rec.ContentType,
		&rec.LastModified,
	); err != nil {
		return nil, err
	}
	rec.KeyTopics = []string{}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &rec.KeyTopics); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
