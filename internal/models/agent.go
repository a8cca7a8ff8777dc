package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCancelled, RunStatusFailed, RunStatusCompleted, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// AgentHandle references the remote agent definition shared by every conversation.
type AgentHandle struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

type Conversation struct {
	ID string `json:"id"`
}

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type RunResult struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	Usage     TokenUsage `json:"usage"`
}
