package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blagoySimandov/certmapper/internal/models"
)

// MemoryStore keeps everything in process memory. It backs DATABASE_URL=memory:// and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	rows map[string]map[int]*models.RowRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
		rows: make(map[string]map[int]*models.RowRecord),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("failed to create job: %s already exists", job.JobID)
	}
	stored := *job
	if stored.Status == "" {
		stored.Status = models.JobStatusPending
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.jobs[job.JobID] = &stored
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, userID string, offset, limit int) ([]*models.Job, error) {
	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.UserID == userID {
			copied := *j
			jobs = append(jobs, &copied)
		}
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return window(jobs, offset, limit), nil
}

func (s *MemoryStore) StartJob(ctx context.Context, jobID string, cfg *models.JobConfig, totalRows int) error {
	return s.update(jobID, func(j *models.Job) error {
		if j.Status != models.JobStatusPending {
			return fmt.Errorf("%w: %s", ErrJobNotPending, jobID)
		}
		now := time.Now()
		j.Status = models.JobStatusRunning
		j.Config = cfg
		j.TotalRows = totalRows
		j.Completed = 0
		j.StartedAt = &now
		return nil
	})
}

func (s *MemoryStore) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg *string) error {
	return s.update(jobID, func(j *models.Job) error {
		j.Status = status
		if errMsg != nil {
			j.Error = errMsg
		}
		if status.Finished() {
			now := time.Now()
			j.CompletedAt = &now
		}
		return nil
	})
}

func (s *MemoryStore) SetJobProgress(ctx context.Context, jobID string, completed int) error {
	return s.update(jobID, func(j *models.Job) error {
		if completed > j.Completed {
			j.Completed = completed
		}
		return nil
	})
}

func (s *MemoryStore) SetJobOutput(ctx context.Context, jobID, outputPath string) error {
	return s.update(jobID, func(j *models.Job) error {
		j.OutputPath = &outputPath
		return nil
	})
}

func (s *MemoryStore) IncrementJobUsage(ctx context.Context, jobID string, promptTokens, completionTokens int) error {
	return s.update(jobID, func(j *models.Job) error {
		j.Usage.PromptTokens += promptTokens
		j.Usage.CompletionTokens += completionTokens
		j.Usage.TotalTokens = j.Usage.PromptTokens + j.Usage.CompletionTokens
		return nil
	})
}

func (s *MemoryStore) update(jobID string, apply func(*models.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err := apply(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SaveRowResults(ctx context.Context, jobID string, records []*models.RowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if s.rows[jobID] == nil {
		s.rows[jobID] = make(map[int]*models.RowRecord)
	}
	for _, r := range records {
		copied := *r
		s.rows[jobID][r.RowNumber] = &copied
	}
	return nil
}

func (s *MemoryStore) GetRowResults(ctx context.Context, jobID string, offset, limit int) ([]*models.RowRecord, error) {
	s.mu.RLock()
	records := make([]*models.RowRecord, 0, len(s.rows[jobID]))
	for _, r := range s.rows[jobID] {
		copied := *r
		records = append(records, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(a, b int) bool {
		return records[a].RowNumber < records[b].RowNumber
	})
	return window(records, offset, limit), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
