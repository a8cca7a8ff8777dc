package services

import (
	"context"
	"fmt"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
)

// AgentClient runs one conversation per row against the shared agent.
type AgentClient struct {
	backend AgentBackend
	handles *AgentHandleProvider
	tracker IUsageTracker
}

type AgentClientOption = func(*AgentClient) error

func NewAgentClient(backend AgentBackend, handles *AgentHandleProvider, opts ...AgentClientOption) (*AgentClient, error) {
	client := &AgentClient{
		backend: backend,
		handles: handles,
	}
	if err := applyFuncOptions(client, opts...); err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}
	return client, nil
}

func WithUsageTracker(tracker IUsageTracker) AgentClientOption {
	return func(c *AgentClient) error {
		c.tracker = tracker
		return nil
	}
}

// Run sends the row as a single user message and turns the agent's last reply into a result.
// Failed runs, missing replies and unparsable replies become placeholder results; only
// transport and remote errors are returned. Nothing is retried here.
func (c *AgentClient) Run(ctx context.Context, input models.RowInput) (models.RowResult, error) {
	if c.backend == nil || c.handles == nil {
		return nil, ErrAgentNotConfigured
	}
	keys := input.Keys()

	agent, err := c.handles.Get(ctx)
	if err != nil {
		return nil, err
	}

	conv, err := c.backend.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	logger.EnrichConversation(ctx, conv.ID)
	if closer, ok := c.backend.(ConversationCloser); ok {
		defer func() {
			if err := closer.CloseConversation(context.WithoutCancel(ctx), conv); err != nil {
				logger.Log.Warn("failed to close conversation", "error", err, "conversation_id", conv.ID)
			}
		}()
	}

	if err := c.backend.SendMessage(ctx, conv, models.RoleUser, input.Message()); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	run, err := c.backend.RunToCompletion(ctx, conv, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to run agent: %w", err)
	}
	logger.EnrichRunStatus(ctx, string(run.Status))
	if c.tracker != nil {
		c.tracker.AddRun(ctx, run)
	}

	if run.Status == models.RunStatusFailed {
		if run.LastError != "" {
			logger.EnrichMetadata(ctx, "run_error", run.LastError)
		}
		return models.Placeholder(keys, models.RunFailed), nil
	}

	messages, err := c.backend.ListMessages(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var reply *models.Message
	for i := range messages {
		if messages[i].Role == models.RoleAssistant {
			reply = &messages[i]
		}
	}
	if reply == nil {
		return models.Placeholder(keys, models.NoResponse), nil
	}

	return ExtractResult(reply.Text, keys), nil
}
