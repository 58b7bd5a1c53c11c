package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/auth"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/services"
)

// AuthHandler handles sign-in
type AuthHandler struct {
	users  *services.UserService
	issuer *auth.Issuer
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(users *services.UserService, issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, expires, err := h.issuer.Issue(user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires,
		"user":       user.ToResponse(),
	})
}

// Me returns the authenticated user
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user.ToResponse())
}
