package job

import (
	"context"

	"github.com/starfire-ai/kbase/internal/service"
)

// ReindexJob periodically sweeps for records the async trigger missed, for
// example after a crash between blob write and index refresh.
type ReindexJob struct {
	reindexer *service.ReindexService
}

func NewReindexJob(reindexer *service.ReindexService) *ReindexJob {
	return &ReindexJob{reindexer: reindexer}
}

func (j *ReindexJob) Name() string {
	return "reindex_backfill"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	if j.reindexer == nil {
		return nil
	}
	return j.reindexer.Run(ctx)
}
