// Package authz decides what a caller may do. Project access is derived from
// the permission map stored on the project; system-wide user management
// requires the admin role. The level to action table is a casbin policy.
package authz

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/casbin/casbin/v3"
	"github.com/kaenova/prompty/internal/metrics"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

//go:embed model.conf policy.csv
var embedFS embed.FS

// Action is something a caller does to a project.
type Action string

const (
	ActionRead       Action = "read"
	ActionMutate     Action = "mutate"
	ActionAdminister Action = "administer"
)

const (
	objectProject  = "project"
	objectSystem   = "system"
	actManageUsers = "manage_users"
)

var (
	errInsufficient = apperrors.Forbidden("insufficient_permissions", "Insufficient permissions")
	errAdminOnly    = apperrors.Forbidden("admin_required", "Admin role required")
)

// Engine resolves permissions from the store and evaluates the policy.
type Engine struct {
	enforcer *casbin.Enforcer
	store    store.Store
	log      *slog.Logger
}

// NewEngine loads the embedded model and policy.
func NewEngine(s store.Store, log *slog.Logger) (*Engine, error) {
	dir, err := os.MkdirTemp("", "prompty-casbin-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := writeEmbedToDir(dir, "model.conf", "policy.csv"); err != nil {
		return nil, err
	}

	enforcer, err := casbin.NewEnforcer(
		filepath.Join(dir, "model.conf"),
		filepath.Join(dir, "policy.csv"),
	)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{enforcer: enforcer, store: s, log: log}, nil
}

func writeEmbedToDir(dir string, names ...string) error {
	for _, name := range names {
		data, err := embedFS.ReadFile(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			return err
		}
	}
	return nil
}

// Authorize returns the level userID holds in project and rejects it unless
// action is allowed. A nil project (one that does not exist) grants nothing.
func (e *Engine) Authorize(project *models.Project, userID string, action Action) (models.Permission, error) {
	p := models.PermissionNone
	if project != nil {
		p = project.Permissions.Of(userID)
	}
	if err := e.check(p, action); err != nil {
		if project != nil {
			e.log.Debug("authz: project access denied", "project_id", project.ID, "user_id", userID, "action", action)
		}
		return p, err
	}
	return p, nil
}

// allowed evaluates the policy for a permission level.
func (e *Engine) allowed(p models.Permission, action Action) bool {
	if !p.Valid() {
		return false
	}
	ok, err := e.enforcer.Enforce(string(p), objectProject, string(action))
	if err != nil {
		e.log.Error("authz: enforce failed", "permission", p, "action", action, "error", err)
		return false
	}
	return ok
}

func (e *Engine) check(p models.Permission, action Action) error {
	if e.allowed(p, action) {
		metrics.AuthzDecisions.WithLabelValues(string(action), "allow").Inc()
		return nil
	}
	metrics.AuthzDecisions.WithLabelValues(string(action), "deny").Inc()
	return errInsufficient
}
// IsAdmin reports whether u may manage users and invites.
func (e *Engine) IsAdmin(u *models.User) bool {
	if u == nil || !u.Role.Valid() {
		return false
	}
	ok, err := e.enforcer.Enforce(string(u.Role), objectSystem, actManageUsers)
	if err != nil {
		e.log.Error("authz: enforce failed", "role", u.Role, "error", err)
		return false
	}
	return ok
}

// RequireAdmin loads userID and rejects unless they hold the admin role.
func (e *Engine) RequireAdmin(ctx context.Context, userID string) (*models.User, error) {
	user, err := store.Fetch[models.User](ctx, e.store, store.Users, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errAdminOnly
		}
		return nil, apperrors.Transient("Failed to load user", err)
	}
	if !e.IsAdmin(user) {
		metrics.AuthzDecisions.WithLabelValues(actManageUsers, "deny").Inc()
		return nil, errAdminOnly
	}
	metrics.AuthzDecisions.WithLabelValues(actManageUsers, "allow").Inc()
	return user, nil
}
