package memu

import "encoding/json"

const (
	ErrorDisabled = "disabled"

	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusTimeout = "TIMEOUT"

	memorizePath       = "/api/v3/memory/memorize"
	memorizeStatusPath = "/api/v3/memory/memorize/status/"
	retrievePath       = "/api/v3/memory/retrieve"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type memorizeRequest struct {
	Conversation   []Message              `json:"conversation"`
	UserID         string                 `json:"user_id"`
	AgentID        string                 `json:"agent_id"`
	OverrideConfig map[string]interface{} `json:"override_config,omitempty"`
}

type retrieveRequest struct {
	UserID         string                 `json:"user_id"`
	AgentID        string                 `json:"agent_id"`
	Query          string                 `json:"query"`
	OverrideConfig map[string]interface{} `json:"override_config,omitempty"`
}

// MemorizeResult never carries a Go error; Error is empty on success.
type MemorizeResult struct {
	TaskID string          `json:"task_id,omitempty"`
	Status string          `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

func (r *MemorizeResult) Failed() bool {
	return r.Error != "" || r.Status == StatusFailed || r.Status == StatusTimeout
}

// RetrieveResult holds the raw cloud body. Raw may be malformed JSON; callers
// treat that as an empty answer rather than an error.
type RetrieveResult struct {
	Raw   json.RawMessage `json:"raw,omitempty"`
	Error string          `json:"error,omitempty"`
}
