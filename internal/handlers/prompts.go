package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/services"
)

// PromptHandler handles prompt version endpoints
type PromptHandler struct {
	prompts *services.PromptService
}

// NewPromptHandler creates a new PromptHandler
func NewPromptHandler(prompts *services.PromptService) *PromptHandler {
	return &PromptHandler{prompts: prompts}
}

// PromptRequest is the body for creating or editing a prompt
type PromptRequest struct {
	PromptText string `json:"prompt_text"`
}

// ListPrompts lists an agent's prompts, newest first
func (h *PromptHandler) ListPrompts(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	prompts, err := h.prompts.List(c.Request.Context(), c.Param("agentId"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompts)
}

// CreatePrompt adds a new inactive prompt to an agent
func (h *PromptHandler) CreatePrompt(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req PromptRequest
	if !bindJSON(c, &req) {
		return
	}
	prompt, err := h.prompts.Create(c.Request.Context(), c.Param("agentId"), user.ID, req.PromptText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prompt)
}

// GetPrompt retrieves a prompt by ID
func (h *PromptHandler) GetPrompt(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	prompt, err := h.prompts.Get(c.Request.Context(), c.Param("promptId"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// UpdatePrompt edits an inactive prompt
func (h *PromptHandler) UpdatePrompt(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req PromptRequest
	if !bindJSON(c, &req) {
		return
	}
	prompt, err := h.prompts.Update(c.Request.Context(), c.Param("promptId"), user.ID, req.PromptText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// DeletePrompt deletes an inactive prompt
func (h *PromptHandler) DeletePrompt(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	if err := h.prompts.Delete(c.Request.Context(), c.Param("promptId"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
