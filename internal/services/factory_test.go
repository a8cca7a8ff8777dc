package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blagoySimandov/certmapper/internal/config"
)

func TestNewBackendFromConfigAzure(t *testing.T) {
	instructions := filepath.Join(t.TempDir(), "agent_instruction.md")
	if err := os.WriteFile(instructions, []byte("custom prompt"), 0o644); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cfg := &config.Config{
		AgentBackend:          config.BackendAzure,
		MaxWorkers:            4,
		ProjectEndpoint:       "https://example.services.ai.azure.com/api/projects/p",
		ModelDeployment:       "gpt-4o",
		SubscriptionKey:       "key",
		BingConnectionName:    "bing-conn",
		AzureAPIVersion:       "v1",
		RunPollInterval:       time.Second,
		AgentInstructionsFile: instructions,
	}

	backend, def, err := NewBackendFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	client, ok := backend.(*AzureAgentsClient)
	if !ok {
		t.Fatalf("expected *AzureAgentsClient, got %T", backend)
	}
	if client.apiKey != "key" || client.credential != nil {
		t.Fatalf("expected api-key auth without a service principal")
	}
	if def.Model != "gpt-4o" || def.Instructions != "custom prompt" || def.Name != DefaultAgentName {
		t.Fatalf("unexpected definition %+v", def)
	}
	if len(def.Tools) != 1 || def.Tools[0].ConnectionID != "bing-conn" {
		t.Fatalf("unexpected tools %+v", def.Tools)
	}
}

func TestNewBackendFromConfigGemini(t *testing.T) {
	cfg := &config.Config{
		AgentBackend: config.BackendGemini,
		MaxWorkers:   1,
		GeminiAPIKey: "k",
		GeminiModel:  "gemini-2.5-flash",
	}
	backend, def, err := NewBackendFromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := backend.(*GeminiAgentBackend); !ok {
		t.Fatalf("expected *GeminiAgentBackend, got %T", backend)
	}
	if def.Instructions != DefaultInstructions || def.Tools[0].Type != googleSearchTool {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestNewBackendFromConfigInvalid(t *testing.T) {
	_, _, err := NewBackendFromConfig(context.Background(), &config.Config{AgentBackend: config.BackendAzure, MaxWorkers: 1})
	if !errors.Is(err, ErrAgentNotConfigured) {
		t.Fatalf("expected ErrAgentNotConfigured, got %v", err)
	}
}
