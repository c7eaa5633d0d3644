package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/starfire-ai/kbase/internal/repo"
)

// RetentionJob expires old conversation turns. Sessions have no explicit end
// of life, so history is trimmed by age.
type RetentionJob struct {
	conversations *repo.ConversationRepo
	keepDays      int
}

func NewRetentionJob(conversations *repo.ConversationRepo, keepDays int) *RetentionJob {
	return &RetentionJob{conversations: conversations, keepDays: keepDays}
}

func (j *RetentionJob) Name() string {
	return "turn_retention"
}

func (j *RetentionJob) Run(ctx context.Context) error {
	if j.conversations == nil || j.keepDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -j.keepDays).UnixMilli()
	deleted, err := j.conversations.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("expired conversation turns removed", zap.Int64("count", deleted))
	}
	return nil
}
