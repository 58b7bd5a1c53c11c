package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/services"
)

// UserHandler handles admin user management
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// UpdateRoleRequest is the body for PATCH /api/users/:id/role
type UpdateRoleRequest struct {
	Role models.Role `json:"role"`
}

// ListUsers lists every user. Admin only.
func (h *UserHandler) ListUsers(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	users, err := h.users.List(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// UpdateRole changes a user's system role. Admin only.
func (h *UserHandler) UpdateRole(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.users.UpdateRole(c.Request.Context(), c.Param("id"), req.Role, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated.ToResponse())
}

// DeleteUser removes a user. Admin only.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
