package services

import (
	"context"
	"fmt"

	"github.com/blagoySimandov/certmapper/internal/config"
	"github.com/blagoySimandov/certmapper/internal/logger"
)

// NewBackendFromConfig builds the configured agent backend and the definition of the shared agent.
func NewBackendFromConfig(ctx context.Context, cfg *config.Config) (AgentBackend, AgentDefinition, error) {
	if err := cfg.Validate(); err != nil {
		return nil, AgentDefinition{}, fmt.Errorf("%w: %v", ErrAgentNotConfigured, err)
	}

	instructions, err := LoadInstructions(cfg.AgentInstructionsFile)
	if err != nil {
		return nil, AgentDefinition{}, err
	}

	switch cfg.AgentBackend {
	case config.BackendGemini:
		backend, err := NewGeminiAgentBackend(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, AgentDefinition{}, err
		}
		return backend, AgentDefinition{
			Name:         DefaultAgentName,
			Model:        cfg.GeminiModel,
			Instructions: instructions,
			Tools:        []ToolDefinition{{Type: googleSearchTool}},
		}, nil

	default:
		opts := []AzureAgentsClientOption{
			WithAPIVersion(cfg.AzureAPIVersion),
			WithPollInterval(cfg.RunPollInterval),
		}
		if cfg.MissingServicePrincipal() {
			logger.Log.Info("azure service principal not configured, using subscription key")
			opts = append(opts, WithAPIKey(cfg.SubscriptionKey))
		} else {
			opts = append(opts, WithClientSecret(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret))
		}

		backend, err := NewAzureAgentsClient(cfg.ProjectEndpoint, opts...)
		if err != nil {
			return nil, AgentDefinition{}, err
		}
		return backend, AgentDefinition{
			Name:         DefaultAgentName,
			Model:        cfg.ModelDeployment,
			Instructions: instructions,
			Tools:        []ToolDefinition{{Type: bingGroundingTool, ConnectionID: cfg.BingConnectionName}},
		}, nil
	}
}
