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

type VisualizationRepo struct {
	db *sql.DB
}

func NewVisualizationRepo(db *sql.DB) *VisualizationRepo {
	return &VisualizationRepo{db: db}
}

func (r *VisualizationRepo) Create(ctx context.Context, set *model.VisualizationSet) error {
	blob, err := json.Marshal(set.Visualizations)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":                 set.ID,
		"title":              set.Title,
		"description":        set.Description,
		"summary":            set.Summary,
		"created_at":         set.CreatedAt,
		"visualizations":     blob,
		"documents_analyzed": set.Metadata.DocumentsAnalyzed,
		"files_referenced":   set.Metadata.FilesReferenced,
		"processing_time":    set.Metadata.ProcessingTime,
	}
	sqlStr, args, err := builder.BuildInsert("visualization_sets", []map[string]interface{}{data})
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

func (r *VisualizationRepo) Get(ctx context.Context, id string) (*model.VisualizationSet, error) {
	const query = `
		SELECT id, title, description, summary, created_at, visualizations,
		       documents_analyzed, files_referenced, processing_time
		FROM visualization_sets
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	var set model.VisualizationSet
	var blob []byte
	if err := row.Scan(
		&set.ID,
		&set.Title,
		&set.Description,
		&set.Summary,
		&set.CreatedAt,
		&blob,
		&set.Metadata.DocumentsAnalyzed,
		&set.Metadata.FilesReferenced,
		&set.Metadata.ProcessingTime,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(blob, &set.Visualizations); err != nil {
		return nil, err
	}
	return &set, nil
}

// List returns summaries of every stored set, newest first. Chart payloads
// stay out of the projection; only the leading chart type is surfaced.
func (r *VisualizationRepo) List(ctx context.Context) ([]model.VisualizationSetSummary, error) {
	const query = `
		SELECT id, title, summary, created_at, visualizations,
		       documents_analyzed, files_referenced, processing_time
		FROM visualization_sets
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.VisualizationSetSummary
	for rows.Next() {
		var item model.VisualizationSetSummary
		var blob []byte
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Summary,
			&item.CreatedAt,
			&blob,
			&item.Metadata.DocumentsAnalyzed,
			&item.Metadata.FilesReferenced,
			&item.Metadata.ProcessingTime,
		); err != nil {
			return nil, err
		}
		var charts []model.Visualization
		if err := json.Unmarshal(blob, &charts); err != nil {
			return nil, err
		}
		if len(charts) > 0 {
			item.FirstChartType = charts[0].ChartType
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *VisualizationRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM visualization_sets WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
