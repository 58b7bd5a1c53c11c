package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/auth"
	"github.com/kaenova/prompty/internal/services"
)

// SetupHandler handles one-time bootstrap of the first admin.
type SetupHandler struct {
	users  *services.UserService
	issuer *auth.Issuer
}

// NewSetupHandler creates a new SetupHandler.
func NewSetupHandler(users *services.UserService, issuer *auth.Issuer) *SetupHandler {
	return &SetupHandler{users: users, issuer: issuer}
}

// SetupRequest is the body for POST /api/setup.
type SetupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Status reports whether setup is still required. Unauthenticated.
func (h *SetupHandler) Status(c *gin.Context) {
	exists, err := h.users.UsersExist(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"setup_required": !exists})
}

// Setup creates the first admin and signs them in. Unauthenticated.
func (h *SetupHandler) Setup(c *gin.Context) {
	var req SetupRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.InitializeAdmin(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, expires, err := h.issuer.Issue(user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      token,
		"expires_at": expires,
		"user":       user.ToResponse(),
	})
}
