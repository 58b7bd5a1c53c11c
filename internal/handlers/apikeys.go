package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/services"
)

// APIKeyHandler handles project API key endpoints
type APIKeyHandler struct {
	keys *services.APIKeyService
}

// NewAPIKeyHandler creates a new APIKeyHandler
func NewAPIKeyHandler(keys *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

// CreateAPIKeyRequest represents an API key creation request
type CreateAPIKeyRequest struct {
	Description string `json:"description"`
}

// ListAPIKeys lists the project's keys with the secret masked
func (h *APIKeyHandler) ListAPIKeys(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	keys, err := h.keys.List(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

// CreateAPIKey issues a key. The plaintext is only in this response.
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req CreateAPIKeyRequest
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	issued, err := h.keys.Issue(c.Request.Context(), c.Param("id"), user.ID, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// RevokeAPIKey deletes a key
func (h *APIKeyHandler) RevokeAPIKey(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	if err := h.keys.Revoke(c.Request.Context(), c.Param("keyId"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
