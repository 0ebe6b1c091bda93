package job

import (
	"context"

	"github.com/xxxsen/common/logutil"

	"github.com/huduma-ai/civicqa/internal/pipeline"
	"github.com/huduma-ai/civicqa/internal/pkg/errs"
)

// ReindexJob rebuilds the index on a schedule. A build already running
// (manual or watcher-triggered) makes the run a clean no-op.
type ReindexJob struct {
	pipe *pipeline.Pipeline
}

func NewReindexJob(pipe *pipeline.Pipeline) *ReindexJob {
	return &ReindexJob{pipe: pipe}
}

func (j *ReindexJob) Name() string {
	return "reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	_, err := j.pipe.Reindex(ctx)
	if errs.IsBuildInProgress(err) {
		logutil.GetLogger(ctx).Info("scheduled reindex skipped: build already running")
		return nil
	}
	return err
}
