package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kaenova/prompty/pkg/errors"
	"github.com/kaenova/prompty/pkg/logger"
)

// respondError renders err as {"error": message, "code": reason}. Causes
// behind internal and transient errors are logged, never returned.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	if appErr.Kind == apperrors.KindInternal || appErr.Kind == apperrors.KindTransient {
		logger.FromContext(c.Request.Context(), nil).Error("request failed",
			"path", c.FullPath(), "kind", appErr.Kind.String(), "error", err)
	}
	c.JSON(appErr.Code, gin.H{"error": appErr.Message, "code": appErr.Reason})
}

// bindJSON decodes the request body into req, writing 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_body"})
		return false
	}
	return true
}
