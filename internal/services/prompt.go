package services

import (
	"context"
	"errors"
	"time"

	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

var errPromptActive = apperrors.Conflict("prompt_active", "The active prompt cannot be changed; deactivate it first")

// PromptService handles prompt versions of an agent.
type PromptService struct {
	Deps
}

// NewPromptService creates a new PromptService
func NewPromptService(d Deps) *PromptService {
	return &PromptService{Deps: d.withDefaults()}
}

// loadPrompt fetches a prompt with its agent and checks the caller may
// perform action on the agent's project.
func loadPrompt(ctx context.Context, d Deps, promptID, userID string, action authz.Action) (*models.AgentPrompt, *models.Agent, error) {
	prompt, err := store.Fetch[models.AgentPrompt](ctx, d.Store, store.Prompts, promptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errPromptNotFound
		}
		return nil, nil, storeError(err, "Failed to load prompt")
	}
	agent, err := loadAgent(ctx, d, prompt.AgentID, userID, action)
	if err != nil {
		return nil, nil, err
	}
	return prompt, agent, nil
}

// Create adds a new, inactive prompt to an agent.
func (s *PromptService) Create(ctx context.Context, agentID, actingUserID, text string) (*models.AgentPrompt, error) {
	if _, err := loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionMutate); err != nil {
		return nil, err
	}
	if blank(text) {
		return nil, apperrors.Validation("invalid_prompt", "Prompt text is required")
	}
	id, err := s.Creds.NewID()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	prompt := &models.AgentPrompt{
		ID:         id,
		AgentID:    agentID,
		PromptText: text,
		CreatedAt:  s.Now(),
	}
	if err := store.Insert(ctx, s.Store, store.Prompts, prompt); err != nil {
		return nil, storeError(err, "Failed to create prompt")
	}
	s.Log.Info("prompt created", "agent_id", agentID, "prompt_id", prompt.ID)
	return prompt, nil
}

// List returns the agent's prompts, newest first.
func (s *PromptService) List(ctx context.Context, agentID, actingUserID string) ([]*models.AgentPrompt, error) {
	if _, err := loadAgent(ctx, s.Deps, agentID, actingUserID, authz.ActionRead); err != nil {
		return nil, err
	}
	prompts, err := store.Find[models.AgentPrompt](ctx, s.Store, store.Prompts, store.Eq("agentId", agentID))
	if err != nil {
		return nil, storeError(err, "Failed to list prompts")
	}
	newestFirst(prompts,
		func(p *models.AgentPrompt) time.Time { return p.CreatedAt },
		func(p *models.AgentPrompt) string { return p.ID })
	return prompts, nil
}

// Get returns a prompt the caller can read.
func (s *PromptService) Get(ctx context.Context, promptID, actingUserID string) (*models.AgentPrompt, error) {
	prompt, _, err := loadPrompt(ctx, s.Deps, promptID, actingUserID, authz.ActionRead)
	return prompt, err
}

// Update replaces the text of an inactive prompt. The agent is touched first
// so a concurrent activation of this prompt conflicts with the edit.
func (s *PromptService) Update(ctx context.Context, promptID, actingUserID, text string) (*models.AgentPrompt, error) {
	if blank(text) {
		return nil, apperrors.Validation("invalid_prompt", "Prompt text is required")
	}
	var prompt *models.AgentPrompt
	err := store.RetryOnConflict(ctx, "prompt.update", func() error {
		p, agent, err := loadPrompt(ctx, s.Deps, promptID, actingUserID, authz.ActionMutate)
		if err != nil {
			return err
		}
		if agent.IsActive(p.ID) {
			return errPromptActive
		}
		if err := store.Save(ctx, s.Store, store.Agents, agent); err != nil {
			return err
		}
		p.PromptText = text
		if err := store.Save(ctx, s.Store, store.Prompts, p); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errPromptNotFound
			}
			return err
		}
		prompt = p
		return nil
	})
	if err != nil {
		return nil, storeError(err, "Failed to update prompt")
	}
	return prompt, nil
}

// Delete removes an inactive prompt, guarded against activation the same way
// as Update.
func (s *PromptService) Delete(ctx context.Context, promptID, actingUserID string) error {
	var agentID string
	err := store.RetryOnConflict(ctx, "prompt.delete", func() error {
		prompt, agent, err := loadPrompt(ctx, s.Deps, promptID, actingUserID, authz.ActionMutate)
		if err != nil {
			return err
		}
		if agent.IsActive(prompt.ID) {
			return errPromptActive
		}
		if err := store.Save(ctx, s.Store, store.Agents, agent); err != nil {
			return err
		}
		if err := store.Remove(ctx, s.Store, store.Prompts, prompt); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errPromptNotFound
			}
			return err
		}
		agentID = agent.ID
		return nil
	})
	if err != nil {
		return storeError(err, "Failed to delete prompt")
	}
	s.Log.Info("prompt deleted", "agent_id", agentID, "prompt_id", promptID)
	return nil
}
