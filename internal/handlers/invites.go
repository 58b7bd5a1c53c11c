package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/services"
)

// InviteHandler handles invite creation and redemption
type InviteHandler struct {
	invites *services.InviteService
}

// NewInviteHandler creates a new InviteHandler
func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

// CreateInviteRequest is the body for POST /api/invites
type CreateInviteRequest struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

// AcceptInviteRequest is the body for POST /api/invites/:token/accept
type AcceptInviteRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateInvite issues an invite. Admin only.
func (h *InviteHandler) CreateInvite(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req CreateInviteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	invite, err := h.invites.Create(c.Request.Context(), req.Name, req.Role, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}

// GetInvite shows who an invite is for. Unauthenticated.
func (h *InviteHandler) GetInvite(c *gin.Context) {
	invite, err := h.invites.Lookup(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":       invite.Name,
		"role":       invite.Role,
		"expires_at": invite.ExpiresAt,
	})
}

// AcceptInvite redeems an invite and creates the account. Unauthenticated.
func (h *InviteHandler) AcceptInvite(c *gin.Context) {
	var req AcceptInviteRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.invites.Accept(c.Request.Context(), c.Param("token"), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user.ToResponse())
}
