package pipeline

import (
	"context"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/services"
)

// Driver turns spreadsheet rows into row inputs and runs them through a Scheduler.
type Driver struct {
	runner RowRunner
	opts   []SchedulerOption
}

func NewDriver(runner RowRunner, opts ...SchedulerOption) *Driver {
	return &Driver{
		runner: runner,
		opts:   opts,
	}
}

// ProcessBatch projects every row onto columns and returns one result per row, in row order.
// Rows are not retried, deduplicated or cached.
func (d *Driver) ProcessBatch(ctx context.Context, rows []models.Row, columns []string, maxWorkers int, onProgress models.ProgressFunc) []models.RowResult {
	inputs := make([]models.RowInput, len(rows))
	numbers := make([]int, len(rows))
	for i, row := range rows {
		inputs[i] = row.Project(columns)
		numbers[i] = row.Number
	}

	scheduler := NewScheduler(d.runner, maxWorkers, d.opts...)
	logger.Log.Info("processing batch",
		"job_id", services.JobIDFromContext(ctx),
		"rows", len(rows),
		"columns", columns,
		"max_workers", scheduler.MaxWorkers())

	return scheduler.process(ctx, inputs, numbers, onProgress)
}

// ProcessRange restricts rows to rng before running the batch and pairs each result with its row.
func (d *Driver) ProcessRange(ctx context.Context, rows []models.Row, columns []string, rng models.RowRange, maxWorkers int, onProgress models.ProgressFunc) []models.RowOutcome {
	selected := Select(rows, rng)
	results := d.ProcessBatch(ctx, selected, columns, maxWorkers, onProgress)

	outcomes := make([]models.RowOutcome, len(selected))
	for i, row := range selected {
		outcomes[i] = models.RowOutcome{
			RowNumber: row.Number,
			Input:     row.Project(columns),
			Result:    results[i],
		}
	}
	return outcomes
}

// Select keeps the rows whose number falls inside rng. Requested numbers past the last row are
// skipped with a warning.
func Select(rows []models.Row, rng models.RowRange) []models.Row {
	if rng.IsZero() {
		return rows
	}

	selected := make([]models.Row, 0, len(rows))
	last := 0
	for _, row := range rows {
		if row.Number > last {
			last = row.Number
		}
		if rng.Contains(row.Number) {
			selected = append(selected, row)
		}
	}

	if rng.End > last || rng.Start > last {
		logger.Log.Warn("row range exceeds sheet, skipping missing rows",
			"start_row", rng.Start,
			"end_row", rng.End,
			"last_row", last)
	}
	return selected
}
