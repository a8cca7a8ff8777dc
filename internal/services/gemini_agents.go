package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/blagoySimandov/certmapper/internal/models"
)

const googleSearchTool = "google_search"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAgentBackend emulates the agent service on top of Gemini: the agent is a system
// instruction plus tools, and conversations live in memory until they are closed.
type GeminiAgentBackend struct {
	models contentGenerator

	mu            sync.Mutex
	agents        map[string]AgentDefinition
	conversations map[string][]models.Message
}

func NewGeminiAgentBackend(ctx context.Context, apiKey string) (*GeminiAgentBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	return newGeminiAgentBackend(client.Models), nil
}

func newGeminiAgentBackend(generator contentGenerator) *GeminiAgentBackend {
	return &GeminiAgentBackend{
		models:        generator,
		agents:        make(map[string]AgentDefinition),
		conversations: make(map[string][]models.Message),
	}
}

func (g *GeminiAgentBackend) CreateAgent(ctx context.Context, def AgentDefinition) (models.AgentHandle, error) {
	if def.Model == "" {
		return models.AgentHandle{}, fmt.Errorf("%w: missing model", ErrAgentNotConfigured)
	}
	id := "agent_" + uuid.New().String()
	g.mu.Lock()
	g.agents[id] = def
	g.mu.Unlock()
	return models.AgentHandle{ID: id, Name: def.Name, Model: def.Model}, nil
}

func (g *GeminiAgentBackend) CreateConversation(ctx context.Context) (models.Conversation, error) {
	id := "conv_" + uuid.New().String()
	g.mu.Lock()
	g.conversations[id] = nil
	g.mu.Unlock()
	return models.Conversation{ID: id}, nil
}

func (g *GeminiAgentBackend) SendMessage(ctx context.Context, conv models.Conversation, role, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs, ok := g.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("conversation %s not found", conv.ID)
	}
	g.conversations[conv.ID] = append(msgs, models.Message{Role: role, Text: text})
	return nil
}

func (g *GeminiAgentBackend) RunToCompletion(ctx context.Context, conv models.Conversation, agent models.AgentHandle) (*models.RunResult, error) {
	g.mu.Lock()
	def, ok := g.agents[agent.ID]
	history := append([]models.Message(nil), g.conversations[conv.ID]...)
	_, convOK := g.conversations[conv.ID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("agent %s not found", agent.ID)
	}
	if !convOK {
		return nil, fmt.Errorf("conversation %s not found", conv.ID)
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		var role genai.Role = genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	config := &genai.GenerateContentConfig{}
	if def.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(def.Instructions, genai.RoleUser)
	}
	for _, t := range def.Tools {
		if t.Type == googleSearchTool || t.Type == bingGroundingTool {
			config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		}
	}

	result, err := g.models.GenerateContent(ctx, def.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	run := &models.RunResult{
		ID:     "run_" + uuid.New().String(),
		Status: models.RunStatusCompleted,
	}
	if result.UsageMetadata != nil {
		um := Deref(result.UsageMetadata)
		run.Usage = models.TokenUsage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.TotalTokenCount - um.PromptTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}

	if len(result.Candidates) == 0 {
		run.Status = models.RunStatusFailed
		if result.PromptFeedback != nil {
			run.LastError = string(result.PromptFeedback.BlockReason)
		}
		return run, nil
	}

	text := result.Text()
	if text == "" {
		return run, nil
	}

	g.mu.Lock()
	g.conversations[conv.ID] = append(g.conversations[conv.ID], models.Message{Role: models.RoleAssistant, Text: text})
	g.mu.Unlock()
	return run, nil
}

func (g *GeminiAgentBackend) ListMessages(ctx context.Context, conv models.Conversation) ([]models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs, ok := g.conversations[conv.ID]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", conv.ID)
	}
	return append([]models.Message(nil), msgs...), nil
}

// CloseConversation drops the in-memory history once the row has its result.
func (g *GeminiAgentBackend) CloseConversation(ctx context.Context, conv models.Conversation) error {
	g.mu.Lock()
	delete(g.conversations, conv.ID)
	g.mu.Unlock()
	return nil
}
