package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaenova/prompty/internal/middleware"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/services"
)

// ProjectHandler handles project and membership endpoints
type ProjectHandler struct {
	projects *services.ProjectService
}

// NewProjectHandler creates a new ProjectHandler
func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest represents a project creation request
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AddMemberRequest is the body for POST /api/projects/:id/members
type AddMemberRequest struct {
	Email      string            `json:"email"`
	Permission models.Permission `json:"permission"`
}

// UpdateMemberRequest is the body for PATCH /api/projects/:id/members/:userId
type UpdateMemberRequest struct {
	Permission models.Permission `json:"permission"`
}

// ListProjects lists all projects for the authenticated user
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	projects, err := h.projects.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject creates a new project owned by the caller
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.Create(c.Request.Context(), req.Name, req.Description, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// GetProject retrieves a project by ID
func (h *ProjectHandler) GetProject(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	project, err := h.projects.Get(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateProject changes name and description. Owner only.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req models.ProjectUpdate
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.UpdateMeta(c.Request.Context(), c.Param("id"), user.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject deletes a project and everything in it. Owner only.
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMembers lists the project's members
func (h *ProjectHandler) ListMembers(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	members, err := h.projects.ListMembers(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// AddMember grants a registered user editor or viewer access
func (h *ProjectHandler) AddMember(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req AddMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.AddMember(c.Request.Context(), c.Param("id"), user.ID, req.Email, req.Permission)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UpdateMember changes a member's permission. Owner only.
func (h *ProjectHandler) UpdateMember(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.UpdateMemberPermission(c.Request.Context(), c.Param("id"), user.ID, c.Param("userId"), req.Permission)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// RemoveMember removes a member. Owner only.
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	user, ok := middleware.RequireAuth(c)
	if !ok {
		return
	}
	if _, err := h.projects.RemoveMember(c.Request.Context(), c.Param("id"), user.ID, c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
