package mapper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/blagoySimandov/certmapper/internal/blob"
	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/pipeline"
	"github.com/blagoySimandov/certmapper/internal/services"
	"github.com/blagoySimandov/certmapper/internal/spreadsheet"
	"github.com/blagoySimandov/certmapper/internal/state"
)

// JobMapper keeps uploads and exports in a blob store and runs each started job in its own
// goroutine through the pipeline driver.
type JobMapper struct {
	driver         *pipeline.Driver
	stateManager   *state.StateManager
	blobs          blob.Store
	defaultWorkers int

	wg sync.WaitGroup
}

func NewJobMapper(driver *pipeline.Driver, stateManager *state.StateManager, blobs blob.Store, defaultWorkers int) *JobMapper {
	return &JobMapper{
		driver:         driver,
		stateManager:   stateManager,
		blobs:          blobs,
		defaultWorkers: defaultWorkers,
	}
}

func uploadPath(jobID, fileName string) string {
	return path.Join("uploads", jobID, path.Base(fileName))
}

func exportPath(jobID, fileName string) string {
	return path.Join("exports", jobID, spreadsheet.OutputName(fileName))
}

// Upload parses the workbook, stores it and creates a pending job describing its headers.
func (m *JobMapper) Upload(ctx context.Context, userID, fileName string, r io.Reader) (*models.Job, error) {
	format, err := spreadsheet.FormatFromName(fileName)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	wb, err := spreadsheet.Open(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	job := &models.Job{
		JobID:     m.stateManager.GenerateJobID(),
		UserID:    userID,
		FileName:  path.Base(fileName),
		Headers:   wb.Headers(),
		TotalRows: wb.RowCount(),
	}
	job.FilePath = uploadPath(job.JobID, job.FileName)

	if err := m.writeBlob(ctx, job.FilePath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return nil, err
	}

	if err := m.stateManager.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	logger.Log.Info("workbook uploaded", "job_id", job.JobID, "file_name", job.FileName, "rows", job.TotalRows)
	return job, nil
}

// Start validates cfg against the uploaded workbook and launches the job. It returns once the
// job is marked running.
func (m *JobMapper) Start(ctx context.Context, jobID string, cfg models.JobConfig) error {
	job, err := m.stateManager.Store().GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrJobNotPending, jobID, job.Status)
	}
	if err := validateConfig(job.Headers, cfg); err != nil {
		return err
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = m.defaultWorkers
	}

	wb, err := m.openWorkbook(ctx, job)
	if err != nil {
		return err
	}
	rows := wb.Rows()
	total := len(pipeline.Select(rows, cfg.Range))

	jobCtx, cancel := context.WithCancel(services.ContextWithJobID(context.WithoutCancel(ctx), jobID))
	if err := m.stateManager.Start(ctx, jobID, &cfg, total, cancel); err != nil {
		cancel()
		wb.Close()
		return err
	}

	m.wg.Add(1)
	go m.run(jobCtx, job, wb, rows, cfg)
	return nil
}

func (m *JobMapper) run(ctx context.Context, job *models.Job, wb *spreadsheet.Workbook, rows []models.Row, cfg models.JobConfig) {
	defer m.wg.Done()
	defer wb.Close()

	// Bookkeeping must survive cancellation of the job context.
	storeCtx := context.WithoutCancel(ctx)

	outcomes := m.driver.ProcessRange(ctx, rows, cfg.Columns, cfg.Range, cfg.MaxWorkers, func(completed, total int) {
		m.stateManager.RecordProgress(storeCtx, job.JobID, completed, total)
	})

	records := make([]*models.RowRecord, len(outcomes))
	for i, o := range outcomes {
		records[i] = models.NewRowRecord(o)
	}
	if err := m.stateManager.Store().SaveRowResults(storeCtx, job.JobID, records); err != nil {
		m.fail(storeCtx, job.JobID, err)
		return
	}

	if ctx.Err() != nil {
		logger.Log.Info("job cancelled", "job_id", job.JobID, "rows", len(outcomes))
		m.stateManager.Finish(job.JobID)
		return
	}

	if err := wb.WriteOutcomes(outcomes, cfg.CertificateHeader, cfg.RemarkHeader); err != nil {
		m.fail(storeCtx, job.JobID, err)
		return
	}
	output := exportPath(job.JobID, job.FileName)
	if err := m.writeBlob(storeCtx, output, wb.Save); err != nil {
		m.fail(storeCtx, job.JobID, err)
		return
	}

	if err := m.stateManager.Complete(storeCtx, job.JobID, output); err != nil {
		logger.Log.Error("failed to complete job", "job_id", job.JobID, "error", err)
		return
	}
	logger.Log.Info("job completed", "job_id", job.JobID, "rows", len(outcomes), "output", output)
}

func (m *JobMapper) fail(ctx context.Context, jobID string, cause error) {
	logger.Log.Error("job failed", "job_id", jobID, "error", cause)
	if err := m.stateManager.Fail(ctx, jobID, cause); err != nil {
		logger.Log.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

func (m *JobMapper) Progress(ctx context.Context, jobID string) (*models.JobProgress, error) {
	return m.stateManager.Progress(ctx, jobID)
}

func (m *JobMapper) Cancel(ctx context.Context, jobID string) error {
	if !m.stateManager.IsRunning(jobID) {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	return m.stateManager.Cancel(ctx, jobID)
}

func (m *JobMapper) Results(ctx context.Context, jobID string, offset, limit int) ([]*models.RowRecord, error) {
	return m.stateManager.Store().GetRowResults(ctx, jobID, offset, limit)
}

// Download opens the exported workbook and returns it with its file name.
func (m *JobMapper) Download(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	job, err := m.stateManager.Store().GetJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.OutputPath == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrNoOutput, jobID)
	}
	r, err := m.blobs.Open(ctx, *job.OutputPath)
	if err != nil {
		return nil, "", err
	}
	return r, path.Base(*job.OutputPath), nil
}

func (m *JobMapper) Jobs(ctx context.Context, userID string, offset, limit int) ([]*models.Job, error) {
	return m.stateManager.Store().ListJobs(ctx, userID, offset, limit)
}

// Wait blocks until every started job has finished.
func (m *JobMapper) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every running job and waits until each has stored its rows, or until ctx
// is done. Rows that had not finished end as cancellation placeholders.
func (m *JobMapper) Shutdown(ctx context.Context) error {
	if n := m.stateManager.CancelAll(ctx); n > 0 {
		logger.Log.Info("cancelled running jobs", "jobs", n)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}

func (m *JobMapper) openWorkbook(ctx context.Context, job *models.Job) (*spreadsheet.Workbook, error) {
	format, err := spreadsheet.FormatFromName(job.FileName)
	if err != nil {
		return nil, err
	}
	r, err := m.blobs.Open(ctx, job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer r.Close()
	return spreadsheet.Open(r, format)
}

func (m *JobMapper) writeBlob(ctx context.Context, name string, write func(io.Writer) error) error {
	w, err := m.blobs.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	return nil
}

func validateConfig(headers []string, cfg models.JobConfig) error {
	known := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		known[h] = struct{}{}
	}
	for _, c := range cfg.Columns {
		if _, ok := known[c]; !ok {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidConfig, c)
		}
	}
	for _, h := range []string{cfg.CertificateHeader, cfg.RemarkHeader} {
		if _, ok := known[h]; !ok {
			return fmt.Errorf("%w: unknown header %q", ErrInvalidConfig, h)
		}
	}
	if cfg.Range.Start < 0 || cfg.Range.End < 0 {
		return fmt.Errorf("%w: negative row number", ErrInvalidConfig)
	}
	if cfg.Range.Start > 0 && cfg.Range.Start < 2 {
		return fmt.Errorf("%w: start row must be at least 2", ErrInvalidConfig)
	}
	if cfg.Range.End > 0 && cfg.Range.End < cfg.Range.Start {
		return fmt.Errorf("%w: end row %d before start row %d", ErrInvalidConfig, cfg.Range.End, cfg.Range.Start)
	}
	return nil
}
