package logger

import (
	"context"
	"log/slog"
	"time"
)

// RowEvent collects everything that happened to one row and is logged once when the row finishes.
type RowEvent struct {
	JobID     string
	RowNumber int
	Columns   []string
	Start     time.Time

	ConversationID string
	RunStatus      string
	Outcome        string
	Error          string
	PanicRecovered bool
	Metadata       map[string]interface{}
}

type contextKey string

const rowEventKey contextKey = "row_event"

func NewRowEvent(jobID string, rowNumber int, columns []string) *RowEvent {
	return &RowEvent{
		JobID:     jobID,
		RowNumber: rowNumber,
		Columns:   columns,
		Start:     time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

func WithRowEvent(ctx context.Context, event *RowEvent) context.Context {
	return context.WithValue(ctx, rowEventKey, event)
}

func RowEventFromContext(ctx context.Context) *RowEvent {
	if event, ok := ctx.Value(rowEventKey).(*RowEvent); ok {
		return event
	}
	return nil
}

func EnrichConversation(ctx context.Context, conversationID string) {
	if event := RowEventFromContext(ctx); event != nil {
		event.ConversationID = conversationID
	}
}

func EnrichRunStatus(ctx context.Context, status string) {
	if event := RowEventFromContext(ctx); event != nil {
		event.RunStatus = status
	}
}

func EnrichMetadata(ctx context.Context, key string, value interface{}) {
	if event := RowEventFromContext(ctx); event != nil {
		event.Metadata[key] = value
	}
}

func (e *RowEvent) Fail(err error, panicked bool) {
	if err != nil {
		e.Error = err.Error()
	}
	e.PanicRecovered = panicked
}

// Emit writes the event as a single structured line.
func (e *RowEvent) Emit(ctx context.Context) {
	attrs := []slog.Attr{
		slog.String("event_type", "row.completed"),
		slog.Int("row_number", e.RowNumber),
		slog.Int64("duration_ms", time.Since(e.Start).Milliseconds()),
	}
	if e.JobID != "" {
		attrs = append(attrs, slog.String("job_id", e.JobID))
	}
	if len(e.Columns) > 0 {
		attrs = append(attrs, slog.Any("columns", e.Columns))
	}
	if e.ConversationID != "" {
		attrs = append(attrs, slog.String("conversation_id", e.ConversationID))
	}
	if e.RunStatus != "" {
		attrs = append(attrs, slog.String("run_status", e.RunStatus))
	}
	if e.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", e.Outcome))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	if e.PanicRecovered {
		attrs = append(attrs, slog.Bool("panic_recovered", true))
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", e.Metadata))
	}

	level := slog.LevelInfo
	if e.Error != "" || e.PanicRecovered {
		level = slog.LevelWarn
	}
	Log.LogAttrs(ctx, level, "row_event", attrs...)
}
