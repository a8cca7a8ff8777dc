package services

import (
	"context"
	"sync"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
)

type contextKey string

const jobIDContextKey contextKey = "jobID"

func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDContextKey, jobID)
}

func JobIDFromContext(ctx context.Context) string {
	if v := ctx.Value(jobIDContextKey); v != nil {
		if jobID, ok := v.(string); ok {
			return jobID
		}
	}
	return ""
}

type UsageStore interface {
	IncrementJobUsage(ctx context.Context, jobID string, promptTokens, completionTokens int) error
}

type IUsageTracker interface {
	AddRun(ctx context.Context, run *models.RunResult)
	Snapshot() UsageSnapshot
}

type UsageSnapshot struct {
	Conversations    int `json:"conversations"`
	FailedRuns       int `json:"failed_runs"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type UsageTracker struct {
	mu    sync.RWMutex
	usage UsageSnapshot
	store UsageStore
}

type UsageTrackerOption = func(*UsageTracker) error

func NewUsageTracker(opts ...UsageTrackerOption) (*UsageTracker, error) {
	ut := &UsageTracker{}
	if err := applyFuncOptions(ut, opts...); err != nil {
		return nil, err
	}
	return ut, nil
}

func WithUsageStore(store UsageStore) UsageTrackerOption {
	return func(ut *UsageTracker) error {
		ut.store = store
		return nil
	}
}

func (u *UsageTracker) AddRun(ctx context.Context, run *models.RunResult) {
	if run == nil {
		return
	}
	u.mu.Lock()
	u.usage.Conversations++
	if run.Status == models.RunStatusFailed {
		u.usage.FailedRuns++
	}
	u.usage.PromptTokens += run.Usage.PromptTokens
	u.usage.CompletionTokens += run.Usage.CompletionTokens
	u.mu.Unlock()

	jobID := JobIDFromContext(ctx)
	if jobID == "" || u.store == nil || run.Usage.PromptTokens+run.Usage.CompletionTokens == 0 {
		return
	}
	// Written before the row returns; row cancellation does not abort the write.
	if err := u.store.IncrementJobUsage(context.WithoutCancel(ctx), jobID, run.Usage.PromptTokens, run.Usage.CompletionTokens); err != nil {
		logger.Log.Error("failed to increment job usage", "error", err, "job_id", jobID)
	}
}

func (u *UsageTracker) Snapshot() UsageSnapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.usage
}
