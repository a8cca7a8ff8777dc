package mapper

import (
	"context"
	"errors"
	"io"

	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/state"
)

var (
	ErrJobNotRunning = errors.New("job is not running")
	ErrJobNotPending = state.ErrJobNotPending
	ErrInvalidConfig = errors.New("invalid job configuration")
	ErrNoOutput      = errors.New("job has no exported workbook")
)

// IMapper runs certificate mapping jobs over uploaded workbooks in the background.
type IMapper interface {
	Upload(ctx context.Context, userID, fileName string, r io.Reader) (*models.Job, error)
	Start(ctx context.Context, jobID string, cfg models.JobConfig) error
	Progress(ctx context.Context, jobID string) (*models.JobProgress, error)
	Cancel(ctx context.Context, jobID string) error
	Results(ctx context.Context, jobID string, offset, limit int) ([]*models.RowRecord, error)
	Download(ctx context.Context, jobID string) (io.ReadCloser, string, error)
	Jobs(ctx context.Context, userID string, offset, limit int) ([]*models.Job, error)
}
