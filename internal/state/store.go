package state

import (
	"context"
	"errors"

	"github.com/blagoySimandov/certmapper/internal/models"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotPending = errors.New("job is not pending")
)

type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, userID string, offset, limit int) ([]*models.Job, error)
	// StartJob moves a pending job to running and stores cfg in the same write. It returns
	// ErrJobNotPending when the job is in any other state, leaving the stored config untouched.
	StartJob(ctx context.Context, jobID string, cfg *models.JobConfig, totalRows int) error
	SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg *string) error
	SetJobProgress(ctx context.Context, jobID string, completed int) error
	SetJobOutput(ctx context.Context, jobID, outputPath string) error
	IncrementJobUsage(ctx context.Context, jobID string, promptTokens, completionTokens int) error

	SaveRowResults(ctx context.Context, jobID string, records []*models.RowRecord) error
	GetRowResults(ctx context.Context, jobID string, offset, limit int) ([]*models.RowRecord, error)

	Close() error
}
