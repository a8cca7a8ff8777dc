package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blagoySimandov/certmapper/internal/models"
)

// fakeBackend is an in-memory AgentBackend. The assistant reply for a conversation is
// produced by reply from the user message.
type fakeBackend struct {
	mu            sync.Mutex
	conversations map[string][]models.Message
	nextID        int

	createCalls  atomic.Int32
	createDelay  time.Duration
	createErr    error
	createCtxErr error

	status  models.RunStatus
	usage   models.TokenUsage
	reply   func(userText string) (string, bool)
	sendErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: make(map[string][]models.Message),
		status:        models.RunStatusCompleted,
		reply: func(userText string) (string, bool) {
			return `{"newCertificateName": "CE", "remark": "ok"}`, true
		},
	}
}

func (f *fakeBackend) CreateAgent(ctx context.Context, def AgentDefinition) (models.AgentHandle, error) {
	n := f.createCalls.Add(1)
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	f.createCtxErr = ctx.Err()
	f.mu.Unlock()
	if f.createErr != nil {
		return models.AgentHandle{}, f.createErr
	}
	return models.AgentHandle{ID: fmt.Sprintf("asst_%d", n), Name: def.Name, Model: def.Model}, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("thread_%d", f.nextID)
	f.conversations[id] = nil
	return models.Conversation{ID: id}, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conv models.Conversation, role, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[conv.ID] = append(f.conversations[conv.ID], models.Message{Role: role, Text: text})
	return nil
}

func (f *fakeBackend) RunToCompletion(ctx context.Context, conv models.Conversation, agent models.AgentHandle) (*models.RunResult, error) {
	if f.status != models.RunStatusCompleted {
		return &models.RunResult{ID: "run_1", Status: f.status, Usage: f.usage}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.conversations[conv.ID]
	if text, ok := f.reply(msgs[len(msgs)-1].Text); ok {
		f.conversations[conv.ID] = append(msgs, models.Message{Role: models.RoleAssistant, Text: text})
	}
	return &models.RunResult{ID: "run_1", Status: models.RunStatusCompleted, Usage: f.usage}, nil
}

func (f *fakeBackend) ListMessages(ctx context.Context, conv models.Conversation) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Message, len(f.conversations[conv.ID]))
	copy(out, f.conversations[conv.ID])
	return out, nil
}

func (f *fakeBackend) lastUserMessage(convID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.conversations[convID] {
		if m.Role == models.RoleUser {
			return m.Text
		}
	}
	return ""
}
