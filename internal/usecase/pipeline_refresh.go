package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"OVIP/internal/domain/models"
	applogger "OVIP/pkg/logger"
	"OVIP/pkg/queue"
)

// RefreshJobType is the queue message type that reruns the pipeline.
const RefreshJobType = "pipeline.refresh"

// RefreshRequest is the payload of a refresh job.
type RefreshRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Refresher is the part of FeaturePipeline a refresh job drives.
type Refresher interface {
	Invalidate(ctx context.Context) error
	Run(ctx context.Context) (*models.PipelineResult, error)
}

// PipelineRefreshJob reruns the pipeline from the queue so one worker does the
// work for every replica.
type PipelineRefreshJob struct {
	pipeline Refresher
	log      *applogger.Logger
}

func NewPipelineRefreshJob(pipeline Refresher, l *applogger.Logger) *PipelineRefreshJob {
	if l == nil {
		l = applogger.Nop()
	}
	return &PipelineRefreshJob{pipeline: pipeline, log: l}
}

func (j *PipelineRefreshJob) Name() string { return "pipeline-refresh" }
func (j *PipelineRefreshJob) Type() string { return RefreshJobType }

func (j *PipelineRefreshJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[RefreshRequest](payload)
	if err != nil {
		return err
	}
	if err := j.pipeline.Invalidate(ctx); err != nil {
		j.log.Warn("invalidate before refresh", applogger.Error(err))
	}
	res, err := j.pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("refresh pipeline: %w", err)
	}
	j.log.Info("pipeline refreshed",
		applogger.String("reason", req.Reason),
		applogger.String("run_id", res.Summary.RunID),
		applogger.Duration("queued_for", time.Since(req.RequestedAt)),
	)
	return nil
}

// RequestRefresh enqueues a refresh job.
func RequestRefresh(ctx context.Context, q queue.Enqueuer, reason string) error {
	return q.Enqueue(ctx, RefreshJobType, RefreshRequest{Reason: reason, RequestedAt: time.Now().UTC()})
}

var _ queue.Job = (*PipelineRefreshJob)(nil)
