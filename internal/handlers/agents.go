package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/services"
)

// AgentHandler handles agent endpoints
type AgentHandler struct {
	agents *services.AgentService
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(agents *services.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

// CreateAgentRequest represents an agent creation request
type CreateAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ActivatePromptRequest is the body for PUT /api/agents/:agentId/active-prompt
type ActivatePromptRequest struct {
	PromptID string `json:"prompt_id"`
}

// ListAgents lists a project's agents
func (h *AgentHandler) ListAgents(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	agents, err := h.agents.List(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// CreateAgent adds an agent to a project
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req CreateAgentRequest
	if !bindJSON(c, &req) {
		return
	}
	agent, err := h.agents.Create(c.Request.Context(), c.Param("id"), user.ID, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// GetAgent retrieves an agent by ID
func (h *AgentHandler) GetAgent(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	agent, err := h.agents.Get(c.Request.Context(), c.Param("agentId"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// UpdateAgent renames or re-describes an agent
func (h *AgentHandler) UpdateAgent(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req models.AgentUpdate
	if !bindJSON(c, &req) {
		return
	}
	agent, err := h.agents.Update(c.Request.Context(), c.Param("agentId"), user.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// DeleteAgent deletes an agent and its prompts
func (h *AgentHandler) DeleteAgent(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	if err := h.agents.Delete(c.Request.Context(), c.Param("agentId"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ActivatePrompt sets the agent's active prompt
func (h *AgentHandler) ActivatePrompt(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req ActivatePromptRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PromptID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt_id is required", "code": "invalid_body"})
		return
	}
	agent, err := h.agents.Activate(c.Request.Context(), c.Param("agentId"), user.ID, req.PromptID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// DeactivatePrompt clears the agent's active prompt
func (h *AgentHandler) DeactivatePrompt(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	agent, err := h.agents.Deactivate(c.Request.Context(), c.Param("agentId"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}
