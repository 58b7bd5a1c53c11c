// Package services holds the business operations. Each service receives its
// store handle and collaborators at construction and keeps no other state.
package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/credentials"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Store  store.Store
	Authz  *authz.Engine
	Creds  *credentials.Generator
	Events *events.Emitter
	Log    *slog.Logger
	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Creds == nil {
		d.Creds = credentials.Default()
	}
	if d.Events == nil {
		d.Events = events.NewEmitter(nil, d.Log)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

// Services bundles every service built from one Deps.
type Services struct {
	Users    *UserService
	Invites  *InviteService
	Projects *ProjectService
	Agents   *AgentService
	Prompts  *PromptService
	APIKeys  *APIKeyService
}

// New wires all services against d.
func New(d Deps, inviteTTL time.Duration) *Services {
	d = d.withDefaults()
	return &Services{
		Users:    NewUserService(d),
		Invites:  NewInviteService(d, inviteTTL),
		Projects: NewProjectService(d),
		Agents:   NewAgentService(d),
		Prompts:  NewPromptService(d),
		APIKeys:  NewAPIKeyService(d),
	}
}

// storeError converts a store failure into the application taxonomy.
// ErrNotFound is left to callers, which know which reason applies.
func storeError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperrors.Transient(message, err)
	default:
		return apperrors.New(apperrors.KindInternal, "internal", message, err)
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// loadProject fetches a project and the caller's permission in it, rejecting
// the caller unless action is allowed. A missing project counts as no access.
func loadProject(ctx context.Context, d Deps, projectID, userID string, action authz.Action) (*models.Project, models.Permission, error) {
	project, err := store.Fetch[models.Project](ctx, d.Store, store.Projects, projectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, models.PermissionNone, storeError(err, "Failed to load project")
		}
		project = nil
	}
	perm, err := d.Authz.Authorize(project, userID, action)
	if err != nil {
		return nil, perm, err
	}
	return project, perm, nil
}

// newestFirst orders by CreatedAt descending, then id descending.
func newestFirst[T any](items []T, createdAt func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := createdAt(items[i]), createdAt(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) > id(items[j])
	})
}
