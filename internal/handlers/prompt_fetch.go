package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/metrics"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/services"
	apperrors "github.com/kaenova/prompty/pkg/errors"
	"github.com/kaenova/prompty/pkg/logger"
)

// PromptFetchHandler serves the active prompt to external applications.
// Requests are authenticated by middleware.APIKeyMiddleware.
type PromptFetchHandler struct {
	agents *services.AgentService
}

// NewPromptFetchHandler creates a new PromptFetchHandler
func NewPromptFetchHandler(agents *services.AgentService) *PromptFetchHandler {
	return &PromptFetchHandler{agents: agents}
}

// GetActivePrompt handles GET /api/prompt?agent_name=...
func (h *PromptFetchHandler) GetActivePrompt(c *gin.Context) {
	projectID, ok := middleware.GetAPIKeyProject(c)
	if !ok {
		metrics.PromptFetchTotal.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}

	agentName := c.Query("agent_name")
	if agentName == "" {
		metrics.PromptFetchTotal.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_name query parameter is required"})
		return
	}

	prompt, err := h.agents.ActivePrompt(c.Request.Context(), projectID, agentName)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			metrics.PromptFetchTotal.WithLabelValues("not_found").Inc()
			appErr, _ := apperrors.As(err)
			c.JSON(http.StatusNotFound, gin.H{"error": appErr.Message, "code": appErr.Reason})
			return
		}
		metrics.PromptFetchTotal.WithLabelValues("error").Inc()
		logger.FromContext(c.Request.Context(), nil).Error("failed to fetch prompt",
			"project_id", projectID, "agent_name", agentName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	metrics.PromptFetchTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, prompt)
}
