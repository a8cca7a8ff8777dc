package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
)

// StateManager tracks running jobs in memory and mirrors their state to the store.
type StateManager struct {
	store       Store
	cancelFuncs map[string]context.CancelFunc
	progress    map[string]models.Progress
	mu          sync.RWMutex
}

func NewStateManager(store Store) *StateManager {
	return &StateManager{
		store:       store,
		cancelFuncs: make(map[string]context.CancelFunc),
		progress:    make(map[string]models.Progress),
	}
}

func (m *StateManager) GenerateJobID() string {
	return uuid.New().String()
}

// CreateJob stores a new pending job, assigning an id when the job has none.
func (m *StateManager) CreateJob(ctx context.Context, job *models.Job) error {
	if job.JobID == "" {
		job.JobID = m.GenerateJobID()
	}
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now()
	return m.store.CreateJob(ctx, job)
}

// Start marks the job running with total selected rows and registers cancel for it.
func (m *StateManager) Start(ctx context.Context, jobID string, cfg *models.JobConfig, total int, cancel context.CancelFunc) error {
	if err := m.store.StartJob(ctx, jobID, cfg, total); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelFuncs[jobID] = cancel
	m.progress[jobID] = models.Progress{Total: total}
	return nil
}

func (m *StateManager) IsRunning(jobID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cancelFuncs[jobID]
	return ok
}

// RecordProgress keeps the highest count seen. A failed write is logged; the in-memory value
// stays authoritative while the job runs.
func (m *StateManager) RecordProgress(ctx context.Context, jobID string, completed, total int) {
	m.mu.Lock()
	current := m.progress[jobID]
	if completed <= current.Completed {
		m.mu.Unlock()
		return
	}
	m.progress[jobID] = models.Progress{Completed: completed, Total: total}
	m.mu.Unlock()

	if err := m.store.SetJobProgress(ctx, jobID, completed); err != nil {
		logger.Log.Warn("failed to persist progress", "job_id", jobID, "completed", completed, "error", err)
	}
}

func (m *StateManager) Progress(ctx context.Context, jobID string) (*models.JobProgress, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	progress := &models.JobProgress{
		JobID:     jobID,
		Status:    job.Status,
		Completed: job.Completed,
		Total:     job.TotalRows,
		StartedAt: job.StartedAt,
	}

	m.mu.RLock()
	if p, ok := m.progress[jobID]; ok && p.Completed > progress.Completed {
		progress.Completed = p.Completed
	}
	m.mu.RUnlock()
	return progress, nil
}

// Cancel stops a running job. Rows already in flight finish with a cancellation placeholder.
func (m *StateManager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	cancel, ok := m.cancelFuncs[jobID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s is not running", jobID)
	}
	cancel()

	return m.store.SetJobStatus(ctx, jobID, models.JobStatusCancelled, nil)
}

// CancelAll cancels every running job and returns how many were cancelled.
func (m *StateManager) CancelAll(ctx context.Context) int {
	m.mu.RLock()
	jobIDs := make([]string, 0, len(m.cancelFuncs))
	for jobID := range m.cancelFuncs {
		jobIDs = append(jobIDs, jobID)
	}
	m.mu.RUnlock()

	cancelled := 0
	for _, jobID := range jobIDs {
		if err := m.Cancel(ctx, jobID); err != nil {
			logger.Log.Warn("failed to cancel job", "job_id", jobID, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled
}

func (m *StateManager) Complete(ctx context.Context, jobID, outputPath string) error {
	defer m.release(jobID)
	if err := m.store.SetJobOutput(ctx, jobID, outputPath); err != nil {
		return err
	}
	return m.store.SetJobStatus(ctx, jobID, models.JobStatusCompleted, nil)
}

func (m *StateManager) Fail(ctx context.Context, jobID string, cause error) error {
	defer m.release(jobID)
	msg := cause.Error()
	return m.store.SetJobStatus(ctx, jobID, models.JobStatusFailed, &msg)
}

// Finish releases a job that ended without completing, e.g. after Cancel.
func (m *StateManager) Finish(jobID string) {
	m.release(jobID)
}

func (m *StateManager) release(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancelFuncs[jobID]; ok {
		cancel()
	}
	delete(m.cancelFuncs, jobID)
	delete(m.progress, jobID)
}

func (m *StateManager) Store() Store {
	return m.store
}
