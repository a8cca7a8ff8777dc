package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/models"
)

const (
	azureAIScope         = "https://ai.azure.com/.default"
	defaultAPIVersion    = "v1"
	defaultPollInterval  = time.Second
	bingGroundingTool    = "bing_grounding"
	maxErrorBodyLength   = 512
	messagesPageSize     = 100
	requiresActionReason = "run requires client-side tool output, none is registered"
)

// APIError is a non-2xx response from the agent service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent service error: status %d, body: %s", e.StatusCode, e.Body)
}

// AzureAgentsClient talks to the Azure AI Foundry Agent Service REST API.
type AzureAgentsClient struct {
	endpoint     string
	apiVersion   string
	apiKey       string
	credential   azcore.TokenCredential
	httpClient   *http.Client
	pollInterval time.Duration
}

type AzureAgentsClientOption = func(*AzureAgentsClient) error

func NewAzureAgentsClient(endpoint string, opts ...AzureAgentsClientOption) (*AzureAgentsClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: missing project endpoint", ErrAgentNotConfigured)
	}
	client := &AzureAgentsClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiVersion:   defaultAPIVersion,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: defaultPollInterval,
	}
	if err := applyFuncOptions(client, opts...); err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}
	if client.credential == nil && client.apiKey == "" {
		return nil, fmt.Errorf("%w: no credential or api key", ErrAgentNotConfigured)
	}
	return client, nil
}

// WithClientSecret authenticates with an Entra ID service principal.
func WithClientSecret(tenantID, clientID, clientSecret string) AzureAgentsClientOption {
	return func(c *AzureAgentsClient) error {
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		if err != nil {
			return fmt.Errorf("failed to create client secret credential: %w", err)
		}
		c.credential = cred
		return nil
	}
}

func WithTokenCredential(cred azcore.TokenCredential) AzureAgentsClientOption {
	return func(c *AzureAgentsClient) error {
		c.credential = cred
		return nil
	}
}

func WithAPIKey(key string) AzureAgentsClientOption {
	return func(c *AzureAgentsClient) error {
		c.apiKey = key
		return nil
	}
}

func WithAPIVersion(version string) AzureAgentsClientOption {
	return func(c *AzureAgentsClient) error {
		if version != "" {
			c.apiVersion = version
		}
		return nil
	}
}

func WithPollInterval(d time.Duration) AzureAgentsClientOption {
	return func(c *AzureAgentsClient) error {
		if d > 0 {
			c.pollInterval = d
		}
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) AzureAgentsClientOption {
	return func(c *AzureAgentsClient) error {
		c.httpClient = httpClient
		return nil
	}
}

type azureTool struct {
	Type          string             `json:"type"`
	BingGrounding *azureBingGrounding `json:"bing_grounding,omitempty"`
}

type azureBingGrounding struct {
	SearchConfigurations []azureSearchConfiguration `json:"search_configurations"`
}

type azureSearchConfiguration struct {
	ConnectionID string `json:"connection_id"`
}

type azureRun struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type azureMessageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

func (c *AzureAgentsClient) CreateAgent(ctx context.Context, def AgentDefinition) (models.AgentHandle, error) {
	tools := make([]azureTool, 0, len(def.Tools))
	for _, t := range def.Tools {
		tool := azureTool{Type: t.Type}
		if t.Type == bingGroundingTool {
			tool.BingGrounding = &azureBingGrounding{
				SearchConfigurations: []azureSearchConfiguration{{ConnectionID: t.ConnectionID}},
			}
		}
		tools = append(tools, tool)
	}

	reqBody := map[string]interface{}{
		"model":        def.Model,
		"name":         def.Name,
		"instructions": def.Instructions,
		"tools":        tools,
	}

	var resp struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	if err := c.do(ctx, http.MethodPost, "/assistants", nil, reqBody, &resp); err != nil {
		return models.AgentHandle{}, err
	}
	return models.AgentHandle{ID: resp.ID, Name: resp.Name, Model: resp.Model}, nil
}

func (c *AzureAgentsClient) CreateConversation(ctx context.Context) (models.Conversation, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/threads", nil, map[string]interface{}{}, &resp); err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{ID: resp.ID}, nil
}

func (c *AzureAgentsClient) SendMessage(ctx context.Context, conv models.Conversation, role, text string) error {
	reqBody := map[string]string{
		"role":    role,
		"content": text,
	}
	return c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(conv.ID)+"/messages", nil, reqBody, nil)
}

// RunToCompletion starts a run and polls it until the service reports a terminal status.
func (c *AzureAgentsClient) RunToCompletion(ctx context.Context, conv models.Conversation, agent models.AgentHandle) (*models.RunResult, error) {
	runsPath := "/threads/" + url.PathEscape(conv.ID) + "/runs"

	var run azureRun
	if err := c.do(ctx, http.MethodPost, runsPath, nil, map[string]string{"assistant_id": agent.ID}, &run); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status := models.RunStatus(run.Status)
		if status.Terminal() {
			return run.toRunResult(), nil
		}
		if status == models.RunStatusRequiresAction {
			if err := c.cancelRun(ctx, runsPath, run.ID); err != nil {
				logger.Log.Warn("failed to cancel run awaiting tool output", "error", err, "run_id", run.ID, "conversation_id", conv.ID)
			}
			result := run.toRunResult()
			result.Status = models.RunStatusFailed
			result.LastError = requiresActionReason
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if err := c.do(ctx, http.MethodGet, runsPath+"/"+url.PathEscape(run.ID), nil, nil, &run); err != nil {
			return nil, err
		}
	}
}

// cancelRun stops a run the client cannot drive to completion so it does not stay active on
// the service.
func (c *AzureAgentsClient) cancelRun(ctx context.Context, runsPath, runID string) error {
	return c.do(context.WithoutCancel(ctx), http.MethodPost, runsPath+"/"+url.PathEscape(runID)+"/cancel", nil, map[string]interface{}{}, nil)
}

func (c *AzureAgentsClient) ListMessages(ctx context.Context, conv models.Conversation) ([]models.Message, error) {
	var messages []models.Message
	after := ""
	for {
		query := url.Values{}
		query.Set("order", "asc")
		query.Set("limit", fmt.Sprintf("%d", messagesPageSize))
		if after != "" {
			query.Set("after", after)
		}

		var page azureMessageList
		if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(conv.ID)+"/messages", query, nil, &page); err != nil {
			return nil, err
		}

		for _, m := range page.Data {
			var text strings.Builder
			for _, part := range m.Content {
				if part.Type == "text" && part.Text != nil {
					text.WriteString(part.Text.Value)
				}
			}
			messages = append(messages, models.Message{Role: m.Role, Text: text.String()})
		}

		if !page.HasMore || page.LastID == "" {
			return messages, nil
		}
		after = page.LastID
	}
}

func (r *azureRun) toRunResult() *models.RunResult {
	result := &models.RunResult{
		ID:     r.ID,
		Status: models.RunStatus(r.Status),
	}
	if r.LastError != nil {
		result.LastError = strings.TrimSpace(r.LastError.Code + " " + r.LastError.Message)
	}
	if r.Usage != nil {
		result.Usage = models.TokenUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	return result
}

func (c *AzureAgentsClient) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	target := c.endpoint + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *AzureAgentsClient) authorize(ctx context.Context, req *http.Request) error {
	if c.credential == nil {
		req.Header.Set("api-key", c.apiKey)
		return nil
	}
	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureAIScope}})
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}
