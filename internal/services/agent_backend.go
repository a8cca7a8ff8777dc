package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blagoySimandov/certmapper/internal/models"
)

const (
	DefaultAgentName = "my-agent-certificate-mapper"

	DefaultInstructions = `You map product certificates to their current official names.
The user sends one spreadsheet row as "column: value" pairs.
Look up the certificate the row refers to and answer with a single JSON object:
{"newCertificateName": "<current official certificate name>", "remark": "<short justification or caveat>"}
If the certificate cannot be identified, set newCertificateName to "" and explain why in remark.`
)

var ErrAgentNotConfigured = errors.New("agent backend is not configured")

type ToolDefinition struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id,omitempty"`
}

type AgentDefinition struct {
	Name         string
	Model        string
	Instructions string
	Tools        []ToolDefinition
}

// AgentBackend is the remote conversational agent service.
type AgentBackend interface {
	CreateAgent(ctx context.Context, def AgentDefinition) (models.AgentHandle, error)
	CreateConversation(ctx context.Context) (models.Conversation, error)
	SendMessage(ctx context.Context, conv models.Conversation, role, text string) error
	RunToCompletion(ctx context.Context, conv models.Conversation, agent models.AgentHandle) (*models.RunResult, error)
	ListMessages(ctx context.Context, conv models.Conversation) ([]models.Message, error)
}

// ConversationCloser is implemented by backends that keep conversation state the client
// should release once a row has its result.
type ConversationCloser interface {
	CloseConversation(ctx context.Context, conv models.Conversation) error
}

// LoadInstructions reads the agent prompt from path, falling back to DefaultInstructions
// when the file does not exist.
func LoadInstructions(path string) (string, error) {
	if path == "" {
		return DefaultInstructions, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultInstructions, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read agent instructions: %w", err)
	}
	return string(data), nil
}
