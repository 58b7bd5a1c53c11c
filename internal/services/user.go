package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/kaenova/prompty/internal/credentials"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

var (
	errUserNotFound       = apperrors.NotFound("user_not_found", "User not found")
	errEmailTaken         = apperrors.Conflict("email_taken", "A user with this email already exists")
	errInvalidCredentials = apperrors.Unauthorized("invalid_credentials", "Invalid email or password")
)

// UserService handles accounts and system roles
type UserService struct {
	Deps
}

// NewUserService creates a new UserService
func NewUserService(d Deps) *UserService {
	return &UserService{Deps: d.withDefaults()}
}

// UsersExist reports whether any account has been created.
func (s *UserService) UsersExist(ctx context.Context) (bool, error) {
	users, err := s.Store.Query(ctx, store.Users)
	if err != nil {
		return false, storeError(err, "Failed to check users")
	}
	return len(users) > 0, nil
}

// InitializeAdmin creates the first account with the admin role. It fails
// once any user exists.
func (s *UserService) InitializeAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	if err := validateAccount(name, email, password); err != nil {
		return nil, err
	}
	exists, err := s.UsersExist(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Conflict("already_initialized", "Setup has already been completed")
	}
	user, err := createUser(ctx, s.Deps, name, email, password, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.Log.Info("admin initialized", "user_id", user.ID)
	return user, nil
}

// Authenticate checks an email and password pair.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !credentials.VerifyPassword(password, user.PasswordHash) {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := store.Fetch[models.User](ctx, s.Store, store.Users, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, storeError(err, "Failed to load user")
	}
	return user, nil
}

// GetByEmail returns a user by email, compared case-insensitively.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := store.FindOne[models.User](ctx, s.Store, store.Users, store.Eq("email", normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, storeError(err, "Failed to load user")
	}
	return user, nil
}

// List returns every user, newest first. Admin only.
func (s *UserService) List(ctx context.Context, actingUserID string) ([]*models.UserResponse, error) {
	if _, err := s.Authz.RequireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	users, err := store.Find[models.User](ctx, s.Store, store.Users)
	if err != nil {
		return nil, storeError(err, "Failed to list users")
	}
	newestFirst(users,
		func(u *models.User) time.Time { return u.CreatedAt },
		func(u *models.User) string { return u.ID })
	out := make([]*models.UserResponse, len(users))
	for i, u := range users {
		out[i] = u.ToResponse()
	}
	return out, nil
}

// UpdateRole changes a user's system role. Admin only; an admin cannot demote themselves.
func (s *UserService) UpdateRole(ctx context.Context, targetID string, role models.Role, actingUserID string) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.Validation("invalid_role", "Role must be admin or user")
	}
	if _, err := s.Authz.RequireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	if targetID == actingUserID && role != models.RoleAdmin {
		return nil, apperrors.Conflict("self_modification", "You cannot change your own role")
	}

	var user *models.User
	err := store.RetryOnConflict(ctx, "user.update_role", func() error {
		u, err := s.Get(ctx, targetID)
		if err != nil {
			return err
		}
		user = u
		if u.Role == role {
			return nil
		}
		u.Role = role
		return store.Save(ctx, s.Store, store.Users, u)
	})
	if err != nil {
		return nil, storeError(err, "Failed to update role")
	}
	s.Log.Info("user role updated", "user_id", targetID, "role", role, "by", actingUserID)
	return user, nil
}

// Delete removes a user and their project permissions. Admin only. It is
// rejected when the user is the only owner of a project; if that only shows
// up partway through, permissions already removed are put back.
func (s *UserService) Delete(ctx context.Context, targetID, actingUserID string) error {
	if _, err := s.Authz.RequireAdmin(ctx, actingUserID); err != nil {
		return err
	}
	if targetID == actingUserID {
		return apperrors.Conflict("self_modification", "You cannot delete your own account")
	}
	if _, err := s.Get(ctx, targetID); err != nil {
		return err
	}

	projects, err := store.Find[models.Project](ctx, s.Store, store.Projects)
	if err != nil {
		return storeError(err, "Failed to load projects")
	}
	var memberOf []string
	for _, p := range projects {
		if err := checkNotLastOwner(p, targetID); err != nil {
			return err
		}
		if _, ok := p.Permissions[targetID]; ok {
			memberOf = append(memberOf, p.ID)
		}
	}

	removed := make(map[string]models.Permission, len(memberOf))
	for _, projectID := range memberOf {
		err := store.RetryOnConflict(ctx, "user.delete", func() error {
			p, err := store.Fetch[models.Project](ctx, s.Store, store.Projects, projectID)
			if err != nil {
				return ignoreNotFound(err)
			}
			perm, ok := p.Permissions[targetID]
			if !ok {
				return nil
			}
			if err := checkNotLastOwner(p, targetID); err != nil {
				return err
			}
			delete(p.Permissions, targetID)
			if err := store.Save(ctx, s.Store, store.Projects, p); err != nil {
				return err
			}
			removed[projectID] = perm
			return nil
		})
		if err != nil {
			s.restoreMemberships(ctx, targetID, removed)
			return storeError(err, "Failed to remove user from projects")
		}
	}

	if err := s.Store.Delete(ctx, store.Users, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errUserNotFound
		}
		return storeError(err, "Failed to delete user")
	}
	s.Log.Info("user deleted", "user_id", targetID, "by", actingUserID, "projects", len(memberOf))
	return nil
}

// restoreMemberships puts back permissions removed by a user deletion that
// could not finish. Projects the user was re-added to in the meantime are
// left alone.
func (s *UserService) restoreMemberships(ctx context.Context, userID string, removed map[string]models.Permission) {
	for projectID, perm := range removed {
		err := store.RetryOnConflict(ctx, "user.delete.restore", func() error {
			p, err := store.Fetch[models.Project](ctx, s.Store, store.Projects, projectID)
			if err != nil {
				return ignoreNotFound(err)
			}
			if _, ok := p.Permissions[userID]; ok {
				return nil
			}
			if p.Permissions == nil {
				p.Permissions = models.Permissions{}
			}
			p.Permissions[userID] = perm
			return store.Save(ctx, s.Store, store.Projects, p)
		})
		if err != nil {
			s.Log.Error("failed to restore project membership", "project_id", projectID, "user_id", userID, "error", err)
		}
	}
}

func checkNotLastOwner(p *models.Project, userID string) error {
	if p.Permissions.Of(userID) != models.PermissionOwner {
		return nil
	}
	if len(p.Permissions.Owners()) == 1 {
		return apperrors.Conflict("last_owner", "User is the only owner of project "+p.Name)
	}
	return nil
}

func validateAccount(name, email, password string) error {
	if blank(name) {
		return apperrors.Validation("invalid_name", "Name is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return apperrors.Validation("invalid_email", "A valid email is required")
	}
	if len(password) < MinPasswordLength {
		return apperrors.Validation("invalid_password", "Password must be at least 8 characters")
	}
	return nil
}

// createUser hashes the password and stores a new account. A taken email
// yields email_taken.
func createUser(ctx context.Context, d Deps, name, email, password string, role models.Role) (*models.User, error) {
	hash, err := d.Creds.HashPassword(password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	id, err := d.Creds.NewID()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	user := &models.User{
		ID:           id,
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    d.Now(),
	}
	if err := store.Insert(ctx, d.Store, store.Users, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errEmailTaken
		}
		return nil, storeError(err, "Failed to create user")
	}
	return user, nil
}
