package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/blagoySimandov/certmapper/internal/models"
)

type staticCredential struct {
	token string
}

func (s staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) != 1 || opts.Scopes[0] != azureAIScope {
		return azcore.AccessToken{}, errors.New("unexpected scope")
	}
	return azcore.AccessToken{Token: s.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

// fakeAgentService mimics the subset of the Agent Service REST API the client uses.
type fakeAgentService struct {
	mu        sync.Mutex
	polls     int
	finalRun  string
	reply     string
	requests  []string
	authSeen  []string
	agentBody map[string]interface{}
	userText  string
	cancelled bool
}

func (f *fakeAgentService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Query().Get("api-version") != "v1" {
		http.Error(w, "missing api-version", http.StatusBadRequest)
		return
	}
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.authSeen = append(f.authSeen, r.Header.Get("Authorization")+r.Header.Get("api-key"))

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/projects/p/assistants":
		json.NewDecoder(r.Body).Decode(&f.agentBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "asst_1", "name": "my-agent-certificate-mapper", "model": "gpt-4o"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/projects/p/threads":
		json.NewEncoder(w).Encode(map[string]string{"id": "thread_1"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/projects/p/threads/thread_1/messages":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.userText = body["content"]
		json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/projects/p/threads/thread_1/runs":
		json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
	case r.Method == http.MethodGet && r.URL.Path == "/api/projects/p/threads/thread_1/runs/run_1":
		f.polls++
		status := "in_progress"
		if f.polls >= 2 {
			status = f.finalRun
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "run_1",
			"status": status,
			"usage":  map[string]int{"prompt_tokens": 50, "completion_tokens": 10, "total_tokens": 60},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/projects/p/threads/thread_1/runs/run_1/cancel":
		f.cancelled = true
		f.finalRun = "cancelling"
		json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "cancelling"})
	case r.Method == http.MethodGet && r.URL.Path == "/api/projects/p/threads/thread_1/messages":
		if r.URL.Query().Get("after") == "" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []interface{}{
					map[string]interface{}{"role": "user", "content": []interface{}{
						map[string]interface{}{"type": "text", "text": map[string]string{"value": f.userText}},
					}},
				},
				"has_more": true,
				"last_id":  "msg_1",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{"role": "assistant", "content": []interface{}{
					map[string]interface{}{"type": "text", "text": map[string]string{"value": f.reply}},
				}},
			},
			"has_more": false,
		})
	default:
		http.Error(w, `{"error":{"message":"not found"}}`, http.StatusNotFound)
	}
}

func newAzureTestClient(t *testing.T, srv *httptest.Server, opts ...AzureAgentsClientOption) *AzureAgentsClient {
	t.Helper()
	opts = append([]AzureAgentsClientOption{
		WithPollInterval(time.Millisecond),
		WithHTTPClient(srv.Client()),
	}, opts...)
	client, err := NewAzureAgentsClient(srv.URL+"/api/projects/p/", opts...)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return client
}

func TestAzureAgentsClientEndToEnd(t *testing.T) {
	svc := &fakeAgentService{
		finalRun: "completed",
		reply:    `Mapping: {"newCertificateName": "IEC 62368-1", "remark": "replaces IEC 60950-1"}`,
	}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	backend := newAzureTestClient(t, srv, WithTokenCredential(staticCredential{token: "tok"}))
	provider := NewAgentHandleProvider(backend, AgentDefinition{
		Name:         DefaultAgentName,
		Model:        "gpt-4o",
		Instructions: DefaultInstructions,
		Tools:        []ToolDefinition{{Type: "bing_grounding", ConnectionID: "conn-1"}},
	})
	client, err := NewAgentClient(backend, provider)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	row := models.NewRowInput(models.Field{Name: "Certificate", Value: "IEC 60950-1"})
	got, err := client.Run(context.Background(), row)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.CertificateName() != "IEC 62368-1" || got.Remark() != "replaces IEC 60950-1" {
		t.Fatalf("unexpected result %v", got)
	}
	if svc.userText != "Certificate: IEC 60950-1" {
		t.Fatalf("unexpected user text %q", svc.userText)
	}
	if svc.polls < 2 {
		t.Fatalf("expected the run to be polled, got %d polls", svc.polls)
	}
	for _, auth := range svc.authSeen {
		if auth != "Bearer tok" {
			t.Fatalf("expected bearer auth on every request, got %q", auth)
		}
	}

	tools, _ := svc.agentBody["tools"].([]interface{})
	if len(tools) != 1 || !strings.Contains(mustJSON(t, tools[0]), `"connection_id":"conn-1"`) {
		t.Fatalf("expected bing grounding tool, got %v", svc.agentBody["tools"])
	}
}

func TestAzureAgentsClientFailedRun(t *testing.T) {
	svc := &fakeAgentService{finalRun: "failed"}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	backend := newAzureTestClient(t, srv, WithAPIKey("secret"))
	run, err := backend.RunToCompletion(context.Background(), models.Conversation{ID: "thread_1"}, models.AgentHandle{ID: "asst_1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if run.Status != models.RunStatusFailed || run.Usage.TotalTokens != 60 {
		t.Fatalf("unexpected run %+v", run)
	}
	if svc.authSeen[0] != "secret" {
		t.Fatalf("expected api-key header, got %q", svc.authSeen[0])
	}
}

func TestAzureAgentsClientCancelsRunAwaitingToolOutput(t *testing.T) {
	svc := &fakeAgentService{finalRun: "requires_action"}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	backend := newAzureTestClient(t, srv, WithAPIKey("secret"))
	run, err := backend.RunToCompletion(context.Background(), models.Conversation{ID: "thread_1"}, models.AgentHandle{ID: "asst_1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if run.Status != models.RunStatusFailed || run.LastError != requiresActionReason {
		t.Fatalf("unexpected run %+v", run)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !svc.cancelled {
		t.Fatalf("expected the run to be cancelled on the service, requests: %v", svc.requests)
	}
	if last := svc.requests[len(svc.requests)-1]; last != "POST /api/projects/p/threads/thread_1/runs/run_1/cancel" {
		t.Fatalf("expected cancel to be the last request, got %q", last)
	}
}

func TestAzureAgentsClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	backend := newAzureTestClient(t, srv, WithAPIKey("secret"))
	_, err := backend.CreateConversation(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected APIError 429, got %v", err)
	}
}

func TestAzureAgentsClientRunHonoursContext(t *testing.T) {
	svc := &fakeAgentService{finalRun: "in_progress"}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	backend := newAzureTestClient(t, srv, WithAPIKey("secret"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := backend.RunToCompletion(ctx, models.Conversation{ID: "thread_1"}, models.AgentHandle{ID: "asst_1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewAzureAgentsClientRequiresAuth(t *testing.T) {
	if _, err := NewAzureAgentsClient("https://example"); !errors.Is(err, ErrAgentNotConfigured) {
		t.Fatalf("expected ErrAgentNotConfigured, got %v", err)
	}
	if _, err := NewAzureAgentsClient("", WithAPIKey("k")); !errors.Is(err, ErrAgentNotConfigured) {
		t.Fatalf("expected ErrAgentNotConfigured for empty endpoint, got %v", err)
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return string(data)
}
