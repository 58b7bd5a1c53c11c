package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

var (
	errAgentNotFound  = apperrors.NotFound("agent_not_found", "Agent not found")
	errPromptNotFound = apperrors.NotFound("prompt_not_found", "Prompt not found")
	errAgentNameTaken = apperrors.Conflict("agent_name_taken", "An agent with this name already exists in the project")
)

// AgentService handles agents and which of their prompts is active.
type AgentService struct {
	Deps
}

// NewAgentService creates a new AgentService
func NewAgentService(d Deps) *AgentService {
	return &AgentService{Deps: d.withDefaults()}
}

// loadAgent fetches an agent and checks the caller may perform action on its project.
func loadAgent(ctx context.Context, d Deps, agentID, userID string, action authz.Action) (*models.Agent, error) {
	agent, err := store.Fetch[models.Agent](ctx, d.Store, store.Agents, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errAgentNotFound
		}
		return nil, storeError(err, "Failed to load agent")
	}
	if _, _, err := loadProject(ctx, d, agent.ProjectID, userID, action); err != nil {
		return nil, err
	}
	return agent, nil
}

// Create adds an agent to a project. Requires editor or owner.
func (s *AgentService) Create(ctx context.Context, projectID, actingUserID, name, description string) (*models.Agent, error) {
	if _, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionMutate); err != nil {
		return nil, err
	}
	if blank(name) {
		return nil, apperrors.Validation("invalid_name", "Agent name is required")
	}
	id, err := s.Creds.NewID()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	agent := &models.Agent{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		ProjectID:   projectID,
		CreatedAt:   s.Now(),
	}
	if err := store.Insert(ctx, s.Store, store.Agents, agent); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errAgentNameTaken
		}
		return nil, storeError(err, "Failed to create agent")
	}
	s.Log.Info("agent created", "project_id", projectID, "agent_id", agent.ID, "name", agent.Name)
	return agent, nil
}

// Get returns an agent the caller can read.
func (s *AgentService) Get(ctx context.Context, agentID, actingUserID string) (*models.Agent, error) {
	return loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionRead)
}

// List returns the project's agents, newest first.
func (s *AgentService) List(ctx context.Context, projectID, actingUserID string) ([]*models.Agent, error) {
	if _, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionRead); err != nil {
		return nil, err
	}
	agents, err := store.Find[models.Agent](ctx, s.Store, store.Agents, store.Eq("projectId", projectID))
	if err != nil {
		return nil, storeError(err, "Failed to list agents")
	}
	newestFirst(agents,
		func(a *models.Agent) time.Time { return a.CreatedAt },
		func(a *models.Agent) string { return a.ID })
	return agents, nil
}

// GetByName resolves an agent by its name within a project. It performs no
// permission check; callers authenticate first.
func (s *AgentService) GetByName(ctx context.Context, projectID, name string) (*models.Agent, error) {
	agent, err := store.FindOne[models.Agent](ctx, s.Store, store.Agents,
		store.Eq("projectId", projectID), store.Eq("name", name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errAgentNotFound
		}
		return nil, storeError(err, "Failed to load agent")
	}
	return agent, nil
}

// Update renames or re-describes an agent. Blank fields are left as they are.
func (s *AgentService) Update(ctx context.Context, agentID, actingUserID string, update models.AgentUpdate) (*models.Agent, error) {
	var agent *models.Agent
	err := store.RetryOnConflict(ctx, "agent.update", func() error {
		a, err := loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionMutate)
		if err != nil {
			return err
		}
		changed := false
		if !blank(update.Name) {
			a.Name = strings.TrimSpace(update.Name)
			changed = true
		}
		if !blank(update.Description) {
			a.Description = strings.TrimSpace(update.Description)
			changed = true
		}
		if changed {
			if err := store.Save(ctx, s.Store, store.Agents, a); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return errAgentNameTaken
				}
				return err
			}
		}
		agent = a
		return nil
	})
	if err != nil {
		return nil, storeError(err, "Failed to update agent")
	}
	return agent, nil
}

// Delete removes an agent and all of its prompts.
func (s *AgentService) Delete(ctx context.Context, agentID, actingUserID string) error {
	agent, err := loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionMutate)
	if err != nil {
		return err
	}
	if err := deleteAgentCascade(ctx, s.Store, agentID); err != nil {
		return storeError(err, "Failed to delete agent")
	}
	if agent.HasActivePrompt() {
		s.Events.Emit(ctx, events.Event{
			Type:      events.PromptDeactivated,
			ProjectID: agent.ProjectID,
			AgentID:   agent.ID,
			AgentName: agent.Name,
			ActorID:   actingUserID,
		})
	}
	s.Log.Info("agent deleted", "project_id", agent.ProjectID, "agent_id", agentID)
	return nil
}

func deleteAgentCascade(ctx context.Context, s store.Store, agentID string) error {
	prompts, err := store.Find[models.AgentPrompt](ctx, s, store.Prompts, store.Eq("agentId", agentID))
	if err != nil {
		return err
	}
	for _, p := range prompts {
		if err := ignoreNotFound(s.Delete(ctx, store.Prompts, p.ID)); err != nil {
			return err
		}
	}
	return ignoreNotFound(s.Delete(ctx, store.Agents, agentID))
}

// Activate makes promptID the agent's active prompt. Activating the prompt
// that is already active changes nothing.
//
// The prompt is rewritten at the version it was read at before the agent is,
// and prompt edits and deletes touch the agent before the prompt. Either the
// activation or the edit then hits a version conflict, so an active prompt is
// never changed and never removed.
func (s *AgentService) Activate(ctx context.Context, agentID, actingUserID, promptID string) (*models.Agent, error) {
	var (
		agent   *models.Agent
		changed bool
	)
	err := store.RetryOnConflict(ctx, "agent.activate", func() error {
		a, err := loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionMutate)
		if err != nil {
			return err
		}
		prompt, err := store.Fetch[models.AgentPrompt](ctx, s.Store, store.Prompts, promptID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errPromptNotFound
			}
			return err
		}
		if prompt.AgentID != a.ID {
			return apperrors.Conflict("prompt_agent_mismatch", "Prompt belongs to a different agent")
		}
		agent = a
		if a.IsActive(promptID) {
			changed = false
			return nil
		}
		if err := store.Save(ctx, s.Store, store.Prompts, prompt); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errPromptNotFound
			}
			return err
		}
		a.ActiveAgentPromptID = &prompt.ID
		if err := store.Save(ctx, s.Store, store.Agents, a); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, storeError(err, "Failed to activate prompt")
	}
	if changed {
		s.Events.Emit(ctx, events.Event{
			Type:      events.PromptActivated,
			ProjectID: agent.ProjectID,
			AgentID:   agent.ID,
			AgentName: agent.Name,
			PromptID:  promptID,
			ActorID:   actingUserID,
		})
		s.Log.Info("prompt activated", "agent_id", agentID, "prompt_id", promptID)
	}
	return agent, nil
}

// Deactivate clears the agent's active prompt. It is always allowed and idempotent.
func (s *AgentService) Deactivate(ctx context.Context, agentID, actingUserID string) (*models.Agent, error) {
	var (
		agent    *models.Agent
		previous string
	)
	err := store.RetryOnConflict(ctx, "agent.deactivate", func() error {
		a, err := loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionMutate)
		if err != nil {
			return err
		}
		agent = a
		previous = ""
		if !a.HasActivePrompt() {
			return nil
		}
		previous = *a.ActiveAgentPromptID
		a.ActiveAgentPromptID = nil
		return store.Save(ctx, s.Store, store.Agents, a)
	})
	if err != nil {
		return nil, storeError(err, "Failed to deactivate prompt")
	}
	if previous != "" {
		s.Events.Emit(ctx, events.Event{
			Type:      events.PromptDeactivated,
			ProjectID: agent.ProjectID,
			AgentID:   agent.ID,
			AgentName: agent.Name,
			PromptID:  previous,
			ActorID:   actingUserID,
		})
		s.Log.Info("prompt deactivated", "agent_id", agentID, "prompt_id", previous)
	}
	return agent, nil
}

// ActivePrompt resolves the active prompt of the named agent in projectID.
// It performs no permission check; the caller has validated an API key.
func (s *AgentService) ActivePrompt(ctx context.Context, projectID, agentName string) (*models.ActivePrompt, error) {
	agent, err := s.GetByName(ctx, projectID, agentName)
	if err != nil {
		return nil, err
	}
	if !agent.HasActivePrompt() {
		return nil, apperrors.NotFound("no_active_prompt", "Agent has no active prompt")
	}
	prompt, err := store.Fetch[models.AgentPrompt](ctx, s.Store, store.Prompts, *agent.ActiveAgentPromptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("prompt_missing", "Active prompt not found")
		}
		return nil, storeError(err, "Failed to load prompt")
	}
	return &models.ActivePrompt{
		AgentName:  agent.Name,
		PromptText: prompt.PromptText,
		PromptID:   prompt.ID,
		UpdatedAt:  prompt.CreatedAt,
	}, nil
}
