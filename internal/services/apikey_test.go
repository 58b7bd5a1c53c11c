package services

import (
	"context"
	"strings"
	"testing"

	"github.com/kaenova/prompty/internal/credentials"
	"github.com/kaenova/prompty/internal/events"
	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	viewer := f.user(t, "viewer", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)
	_, err = f.Projects.AddMember(ctx, project.ID, owner.ID, viewer.Email, models.PermissionViewer)
	require.NoError(t, err)

	_, err = f.APIKeys.Issue(ctx, project.ID, viewer.ID, "")
	assertAppError(t, err, apperrors.KindForbidden, "insufficient_permissions")

	issued, err := f.APIKeys.Issue(ctx, project.ID, owner.ID, "production")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.Key, "pk_"))

	projectID, ok, err := f.APIKeys.Validate(ctx, issued.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, project.ID, projectID)

	keys, err := f.APIKeys.List(ctx, project.ID, viewer.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "pk_…"+issued.Key[len(issued.Key)-4:], keys[0].MaskedKey)
	assert.NotContains(t, keys[0].MaskedKey, issued.Key[3:20])

	assertAppError(t, f.APIKeys.Revoke(ctx, issued.ID, viewer.ID), apperrors.KindForbidden, "")
	require.NoError(t, f.APIKeys.Revoke(ctx, issued.ID, owner.ID))
	assertAppError(t, f.APIKeys.Revoke(ctx, issued.ID, owner.ID), apperrors.KindNotFound, "api_key_not_found")

	_, ok, err = f.APIKeys.Validate(ctx, issued.Key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []events.Type{events.APIKeyRevoked}, f.events.Types())

	_, ok, err = f.APIKeys.Validate(ctx, "not-a-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssueGivesUpOnRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner", models.RoleUser)
	project, err := f.Projects.Create(ctx, "P", "", owner.ID)
	require.NoError(t, err)

	d := f.APIKeys.Deps
	d.Creds = credentials.NewGenerator(zeroReader{})
	keys := NewAPIKeyService(d)

	_, err = keys.Issue(ctx, project.ID, owner.ID, "first")
	require.NoError(t, err)
	_, err = keys.Issue(ctx, project.ID, owner.ID, "second")
	require.Error(t, err)

	recs, err := f.store.Query(ctx, store.APIKeys)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
