package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/metrics"
	"github.com/kaenova/prompty/internal/services"
	"github.com/kaenova/prompty/pkg/logger"
)

// APIKeyHeader carries a project API key on public requests.
const APIKeyHeader = "X-API-Key"

const projectContextName = "api_key_project"

// APIKeyMiddleware authenticates a request by its project API key and stores
// the bound project id in the Gin context. Missing, unknown and revoked keys
// are all answered with 401.
func APIKeyMiddleware(keys *services.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := c.GetHeader(APIKeyHeader)
		if rawKey == "" {
			metrics.PromptFetchTotal.WithLabelValues("unauthorized").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			return
		}

		projectID, ok, err := keys.Validate(c.Request.Context(), rawKey)
		if err != nil {
			metrics.PromptFetchTotal.WithLabelValues("error").Inc()
			logger.FromContext(c.Request.Context(), nil).Error("failed to validate API key", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if !ok {
			metrics.PromptFetchTotal.WithLabelValues("unauthorized").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Set(projectContextName, projectID)
		c.Next()
	}
}

// GetAPIKeyProject returns the project id bound to the request's API key.
func GetAPIKeyProject(c *gin.Context) (string, bool) {
	id := c.GetString(projectContextName)
	return id, id != ""
}
