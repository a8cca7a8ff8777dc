package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/services"
)

const DefaultMaxWorkers = 4

// Scheduler fans rows out over a bounded pool of workers and collects results in input order.
type Scheduler struct {
	runner     RowRunner
	maxWorkers int
	rowTimeout time.Duration
}

type SchedulerOption = func(*Scheduler)

// WithRowTimeout bounds each row; an expired row resolves to "Error: context deadline exceeded".
func WithRowTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.rowTimeout = d
	}
}

func NewScheduler(runner RowRunner, maxWorkers int, opts ...SchedulerOption) *Scheduler {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	s := &Scheduler{
		runner:     runner,
		maxWorkers: maxWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) MaxWorkers() int {
	return s.maxWorkers
}

// Process returns exactly one result per input, at the input's index. onProgress is called once
// per finished row with a strictly increasing count, never concurrently with itself.
func (s *Scheduler) Process(ctx context.Context, inputs []models.RowInput, onProgress models.ProgressFunc) []models.RowResult {
	return s.process(ctx, inputs, nil, onProgress)
}

// process is Process with sheet row numbers for logging. numbers may be nil.
func (s *Scheduler) process(ctx context.Context, inputs []models.RowInput, numbers []int, onProgress models.ProgressFunc) []models.RowResult {
	results := make([]models.RowResult, len(inputs))
	if len(inputs) == 0 {
		return results
	}

	total := len(inputs)
	jobID := services.JobIDFromContext(ctx)

	var (
		mu        sync.Mutex
		completed int
	)

	var g errgroup.Group
	g.SetLimit(s.maxWorkers)

	for i, input := range inputs {
		rowNumber := i + 1
		if numbers != nil {
			rowNumber = numbers[i]
		}
		g.Go(func() error {
			results[i] = s.runOne(ctx, jobID, rowNumber, input)

			mu.Lock()
			completed++
			if onProgress != nil {
				onProgress(completed, total)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Scheduler) runOne(ctx context.Context, jobID string, rowNumber int, input models.RowInput) models.RowResult {
	event := logger.NewRowEvent(jobID, rowNumber, input.Keys())
	ctx = logger.WithRowEvent(ctx, event)

	if s.rowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rowTimeout)
		defer cancel()
	}

	result := runRowTask(ctx, s.runner, input)
	if result.IsPlaceholder() {
		event.Outcome = "placeholder"
	} else {
		event.Outcome = "mapped"
	}
	event.Emit(ctx)
	return result
}
