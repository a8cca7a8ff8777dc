package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
)

// RowRunner computes the agent result for a single row.
type RowRunner interface {
	Run(ctx context.Context, input models.RowInput) (models.RowResult, error)
}

type RowRunnerFunc func(ctx context.Context, input models.RowInput) (models.RowResult, error)

func (f RowRunnerFunc) Run(ctx context.Context, input models.RowInput) (models.RowResult, error) {
	return f(ctx, input)
}

// runRowTask never fails: errors and panics become an "Error: <msg>" placeholder keyed by
// the row's own columns.
func runRowTask(ctx context.Context, runner RowRunner, input models.RowInput) (result models.RowResult) {
	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			if event := logger.RowEventFromContext(ctx); event != nil {
				event.Fail(err, true)
			}
			result = models.ErrorPlaceholder(input.Keys(), err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return failRow(ctx, input, err)
	}

	result, err := runner.Run(ctx, input)
	if err != nil {
		return failRow(ctx, input, err)
	}
	if result == nil {
		result = models.RowResult{}
	}
	return result
}

func failRow(ctx context.Context, input models.RowInput, err error) models.RowResult {
	if event := logger.RowEventFromContext(ctx); event != nil {
		event.Fail(err, false)
	}
	return models.ErrorPlaceholder(input.Keys(), err)
}

func panicError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
