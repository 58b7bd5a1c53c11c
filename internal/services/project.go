package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

// ProjectService handles projects and their permission maps
type ProjectService struct {
	Deps
}

// NewProjectService creates a new ProjectService
func NewProjectService(d Deps) *ProjectService {
	return &ProjectService{Deps: d.withDefaults()}
}

// Create creates a project owned by ownerID.
func (s *ProjectService) Create(ctx context.Context, name, description, ownerID string) (*models.Project, error) {
	if blank(name) {
		return nil, apperrors.Validation("invalid_name", "Project name is required")
	}
	id, err := s.Creds.NewID()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	project := &models.Project{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Permissions: models.Permissions{ownerID: models.PermissionOwner},
		CreatedAt:   s.Now(),
	}
	if err := store.Insert(ctx, s.Store, store.Projects, project); err != nil {
		return nil, storeError(err, "Failed to create project")
	}
	s.Log.Info("project created", "project_id", project.ID, "owner_id", ownerID)
	return project, nil
}

// ListForUser returns every project userID holds any permission in, newest first.
func (s *ProjectService) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	all, err := store.Find[models.Project](ctx, s.Store, store.Projects)
	if err != nil {
		return nil, storeError(err, "Failed to list projects")
	}
	projects := make([]*models.Project, 0, len(all))
	for _, p := range all {
		if p.Permissions.Of(userID) != models.PermissionNone {
			projects = append(projects, p)
		}
	}
	newestFirst(projects,
		func(p *models.Project) time.Time { return p.CreatedAt },
		func(p *models.Project) string { return p.ID })
	return projects, nil
}

// Get returns a project the caller can read.
func (s *ProjectService) Get(ctx context.Context, projectID, userID string) (*models.Project, error) {
	project, _, err := loadProject(ctx, s.Deps, projectID, userID, authz.ActionRead)
	return project, err
}

// AddMember grants editor or viewer access to the user registered under
// targetEmail, replacing any entry they already had. Owners are changed only
// through UpdateMemberPermission.
func (s *ProjectService) AddMember(ctx context.Context, projectID, actingUserID, targetEmail string, permission models.Permission) (*models.Project, error) {
	if permission != models.PermissionEditor && permission != models.PermissionViewer {
		return nil, apperrors.Validation("invalid_permission", "Permission must be editor or viewer")
	}
	if blank(targetEmail) {
		return nil, apperrors.Validation("invalid_email", "Email is required")
	}
	if _, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionMutate); err != nil {
		return nil, err
	}

	target, err := store.FindOne[models.User](ctx, s.Store, store.Users, store.Eq("email", normalizeEmail(targetEmail)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("user_not_found", "No user with that email")
		}
		return nil, storeError(err, "Failed to look up user")
	}
	if target.ID == actingUserID {
		return nil, apperrors.Conflict("self_modification", "You cannot change your own permission")
	}

	var project *models.Project
	err = store.RetryOnConflict(ctx, "project.add_member", func() error {
		p, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionMutate)
		if err != nil {
			return err
		}
		if p.Permissions.Of(target.ID) == models.PermissionOwner {
			return apperrors.Conflict("owner_downgrade", "User is an owner of this project")
		}
		p.Permissions[target.ID] = permission
		if err := store.Save(ctx, s.Store, store.Projects, p); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, storeError(err, "Failed to add member")
	}
	s.Log.Info("member added", "project_id", projectID, "user_id", target.ID, "permission", permission)
	return project, nil
}

// UpdateMemberPermission changes an existing member's level. Owner only.
func (s *ProjectService) UpdateMemberPermission(ctx context.Context, projectID, actingUserID, memberID string, newPermission models.Permission) (*models.Project, error) {
	if !newPermission.Valid() {
		return nil, apperrors.Validation("invalid_permission", "Permission must be owner, editor or viewer")
	}
	return s.updateMembers(ctx, "project.update_member", projectID, actingUserID, memberID, func(perms models.Permissions) {
		perms[memberID] = newPermission
	})
}

// RemoveMember drops memberID from the permission map. Owner only.
func (s *ProjectService) RemoveMember(ctx context.Context, projectID, actingUserID, memberID string) (*models.Project, error) {
	return s.updateMembers(ctx, "project.remove_member", projectID, actingUserID, memberID, func(perms models.Permissions) {
		delete(perms, memberID)
	})
}

func (s *ProjectService) updateMembers(ctx context.Context, op, projectID, actingUserID, memberID string, apply func(models.Permissions)) (*models.Project, error) {
	var project *models.Project
	err := store.RetryOnConflict(ctx, op, func() error {
		p, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionAdminister)
		if err != nil {
			return err
		}
		if actingUserID == memberID {
			return apperrors.Conflict("self_modification", "You cannot change your own permission")
		}
		if _, ok := p.Permissions[memberID]; !ok {
			return apperrors.NotFound("member_not_found", "User is not a member of this project")
		}
		apply(p.Permissions)
		if err := store.Save(ctx, s.Store, store.Projects, p); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, storeError(err, "Failed to update members")
	}
	s.Log.Info("membership changed", "op", op, "project_id", projectID, "member_id", memberID)
	return project, nil
}

var permissionRank = map[models.Permission]int{
	models.PermissionOwner:  0,
	models.PermissionEditor: 1,
	models.PermissionViewer: 2,
}

// ListMembers joins the permission map with user records.
func (s *ProjectService) ListMembers(ctx context.Context, projectID, actingUserID string) ([]models.Member, error) {
	project, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	members := make([]models.Member, 0, len(project.Permissions))
	for userID, perm := range project.Permissions {
		m := models.Member{UserID: userID, Permission: perm}
		user, err := store.Fetch[models.User](ctx, s.Store, store.Users, userID)
		switch {
		case err == nil:
			m.Name, m.Email = user.Name, user.Email
		case !errors.Is(err, store.ErrNotFound):
			return nil, storeError(err, "Failed to load members")
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		ri, rj := permissionRank[members[i].Permission], permissionRank[members[j].Permission]
		if ri != rj {
			return ri < rj
		}
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

// UpdateMeta changes name and description. Blank fields are left as they are.
func (s *ProjectService) UpdateMeta(ctx context.Context, projectID, actingUserID string, update models.ProjectUpdate) (*models.Project, error) {
	var project *models.Project
	err := store.RetryOnConflict(ctx, "project.update", func() error {
		p, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionAdminister)
		if err != nil {
			return err
		}
		changed := false
		if !blank(update.Name) {
			p.Name = strings.TrimSpace(update.Name)
			changed = true
		}
		if !blank(update.Description) {
			p.Description = strings.TrimSpace(update.Description)
			changed = true
		}
		if changed {
			if err := store.Save(ctx, s.Store, store.Projects, p); err != nil {
				return err
			}
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, storeError(err, "Failed to update project")
	}
	return project, nil
}

// Delete removes the project with its agents, their prompts and its API keys. Owner only.
func (s *ProjectService) Delete(ctx context.Context, projectID, actingUserID string) error {
	if _, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionAdminister); err != nil {
		return err
	}

	agents, err := store.Find[models.Agent](ctx, s.Store, store.Agents, store.Eq("projectId", projectID))
	if err != nil {
		return storeError(err, "Failed to delete project")
	}
	for _, agent := range agents {
		if err := deleteAgentCascade(ctx, s.Store, agent.ID); err != nil {
			return storeError(err, "Failed to delete project")
		}
	}

	keys, err := store.Find[models.ProjectAPIKey](ctx, s.Store, store.APIKeys, store.Eq("projectId", projectID))
	if err != nil {
		return storeError(err, "Failed to delete project")
	}
	for _, key := range keys {
		if err := ignoreNotFound(s.Store.Delete(ctx, store.APIKeys, key.ID)); err != nil {
			return storeError(err, "Failed to delete project")
		}
	}

	if err := ignoreNotFound(s.Store.Delete(ctx, store.Projects, projectID)); err != nil {
		return storeError(err, "Failed to delete project")
	}
	s.Events.Emit(ctx, events.Event{Type: events.ProjectDeleted, ProjectID: projectID, ActorID: actingUserID})
	s.Log.Info("project deleted", "project_id", projectID, "agents", len(agents), "api_keys", len(keys))
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
