package models

import "time"

// Agent is a named consumer of prompts within a project.
type Agent struct {
	ID                  string    `json:"id"`
	Version             int64     `json:"version"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	ProjectID           string    `json:"projectId"`
	ActiveAgentPromptID *string   `json:"activeAgentPromptId"`
	CreatedAt           time.Time `json:"createdAt"`
}

// HasActivePrompt reports whether the agent is in the HAS_ACTIVE_PROMPT state.
func (a *Agent) HasActivePrompt() bool {
	return a.ActiveAgentPromptID != nil && *a.ActiveAgentPromptID != ""
}

// IsActive reports whether promptID is the agent's active prompt.
func (a *Agent) IsActive(promptID string) bool {
	return a.HasActivePrompt() && *a.ActiveAgentPromptID == promptID
}

// AgentUpdate carries optional agent metadata changes. Blank fields are ignored.
type AgentUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AgentPrompt is one version of an agent's prompt text.
type AgentPrompt struct {
	ID         string    `json:"id"`
	Version    int64     `json:"version"`
	AgentID    string    `json:"agentId"`
	PromptText string    `json:"promptText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ActivePrompt is what the public fetch endpoint returns.
type ActivePrompt struct {
	AgentName  string    `json:"agent_name"`
	PromptText string    `json:"prompt_text"`
	PromptID   string    `json:"prompt_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}
