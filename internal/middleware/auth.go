package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/auth"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/services"
	apperrors "github.com/kaenova/prompty/pkg/errors"
	"github.com/kaenova/prompty/pkg/logger"
)

const userContextName = "user"

// AuthMiddleware validates the bearer session token and sets the user in the
// Gin context. The user is re-read on every request so deleted accounts and
// role changes take effect immediately.
func AuthMiddleware(issuer *auth.Issuer, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := users.Get(c.Request.Context(), claims.Subject)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			logger.FromContext(c.Request.Context(), nil).Error("failed to load session user", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}

		c.Set(userContextName, user)
		c.Next()
	}
}

// RequireAuth returns the authenticated user, writing 401 when there is none.
func RequireAuth(c *gin.Context) (*models.User, bool) {
	user, ok := GetUserFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return user, true
}

// GetUserFromContext retrieves the user from the Gin context
func GetUserFromContext(c *gin.Context) (*models.User, bool) {
	val, ok := c.Get(userContextName)
	if !ok {
		return nil, false
	}
	user, ok := val.(*models.User)
	return user, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
