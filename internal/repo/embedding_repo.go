package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/starfire-ai/kbase/internal/model"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func (r *EmbeddingRepo) Save(ctx context.Context, emb *model.RecordEmbedding) error {
	const query = `
		INSERT INTO record_embeddings (object_key, version, embedding, content_hash, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (object_key, version) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		emb.ObjectKey,
		emb.Version,
		pgvector.NewVector(emb.Embedding),
		emb.ContentHash,
		emb.Mtime,
	)
	return err
}

// Search returns the records closest to the query vector by cosine distance.
func (r *EmbeddingRepo) Search(ctx context.Context, query []float32, topK uint) ([]model.UploadRecord, error) {
	const sqlStr = `
		SELECT u.object_key, u.version, u.id, u.name, u.type, u.size, u.summary,
		       u.key_topics, u.data_classification, u.upload_timestamp, u.bucket,
		       u.content_type, u.last_modified
		FROM record_embeddings e
		JOIN upload_records u ON u.object_key = e.object_key AND u.version = e.version
		ORDER BY e.embedding <=> $1
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, sqlStr, pgvector.NewVector(query), topK)
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

// ListUnindexed returns upload records that have no embedding row yet.
func (r *EmbeddingRepo) ListUnindexed(ctx context.Context, limit uint) ([]model.UploadRecord, error) {
	const query = `
		SELECT u.object_key, u.version, u.id, u.name, u.type, u.size, u.summary,
		       u.key_topics, u.data_classification, u.upload_timestamp, u.bucket,
		       u.content_type, u.last_modified
		FROM upload_records u
		LEFT JOIN record_embeddings e ON u.object_key = e.object_key AND u.version = e.version
		WHERE e.object_key IS NULL
		ORDER BY u.upload_timestamp ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
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

func (r *EmbeddingRepo) Count(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM record_embeddings`)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
