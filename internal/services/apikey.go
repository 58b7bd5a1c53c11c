package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kaenova/prompty/internal/authz"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

// issueAttempts bounds key regeneration when a generated key collides.
const issueAttempts = 3

// IssuedKey is returned once, when a key is created. The plaintext is never
// retrievable again.
type IssuedKey struct {
	*models.APIKeyResponse
	Key string `json:"api_key"`
}

// APIKeyService handles project API keys
type APIKeyService struct {
	Deps
}

// NewAPIKeyService creates a new APIKeyService
func NewAPIKeyService(d Deps) *APIKeyService {
	return &APIKeyService{Deps: d.withDefaults()}
}

// Issue creates a key bound to projectID. Requires editor or owner.
func (s *APIKeyService) Issue(ctx context.Context, projectID, actingUserID, description string) (*IssuedKey, error) {
	if _, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionMutate); err != nil {
		return nil, err
	}

	id, err := s.Creds.NewID()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	key := &models.ProjectAPIKey{
		ID:          id,
		ProjectID:   projectID,
		UserID:      actingUserID,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.Now(),
	}
	for attempt := 1; ; attempt++ {
		key.APIKey, err = s.Creds.NewAPIKey()
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		err = store.Insert(ctx, s.Store, store.APIKeys, key)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt == issueAttempts {
			return nil, storeError(err, "Failed to issue API key")
		}
		s.Log.Warn("generated API key collided, regenerating", "project_id", projectID, "attempt", attempt)
	}

	s.Log.Info("API key issued", "project_id", projectID, "key_id", key.ID)
	return &IssuedKey{APIKeyResponse: key.ToResponse(), Key: key.APIKey}, nil
}

// List returns the project's keys with the secret masked, newest first.
func (s *APIKeyService) List(ctx context.Context, projectID, actingUserID string) ([]*models.APIKeyResponse, error) {
	if _, _, err := loadProject(ctx, s.Deps, projectID, actingUserID, authz.ActionRead); err != nil {
		return nil, err
	}
	keys, err := store.Find[models.ProjectAPIKey](ctx, s.Store, store.APIKeys, store.Eq("projectId", projectID))
	if err != nil {
		return nil, storeError(err, "Failed to list API keys")
	}
	newestFirst(keys,
		func(k *models.ProjectAPIKey) time.Time { return k.CreatedAt },
		func(k *models.ProjectAPIKey) string { return k.ID })
	out := make([]*models.APIKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = k.ToResponse()
	}
	return out, nil
}

// Revoke deletes a key. The caller needs editor or owner on the key's project.
func (s *APIKeyService) Revoke(ctx context.Context, keyID, actingUserID string) error {
	key, err := store.Fetch[models.ProjectAPIKey](ctx, s.Store, store.APIKeys, keyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("api_key_not_found", "API key not found")
		}
		return storeError(err, "Failed to load API key")
	}
	if _, _, err := loadProject(ctx, s.Deps, key.ProjectID, actingUserID, authz.ActionMutate); err != nil {
		return err
	}
	if err := ignoreNotFound(s.Store.Delete(ctx, store.APIKeys, keyID)); err != nil {
		return storeError(err, "Failed to revoke API key")
	}
	s.Events.Emit(ctx, events.Event{Type: events.APIKeyRevoked, ProjectID: key.ProjectID, KeyID: keyID, ActorID: actingUserID})
	s.Log.Info("API key revoked", "project_id", key.ProjectID, "key_id", keyID)
	return nil
}

// Validate returns the project rawKey is bound to. ok is false when the key
// is unknown or revoked.
func (s *APIKeyService) Validate(ctx context.Context, rawKey string) (projectID string, ok bool, err error) {
	if !strings.HasPrefix(rawKey, models.APIKeyPrefix) {
		return "", false, nil
	}
	key, err := store.FindOne[models.ProjectAPIKey](ctx, s.Store, store.APIKeys, store.Eq("apiKey", rawKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, storeError(err, "Failed to validate API key")
	}
	return key.ProjectID, true, nil
}
