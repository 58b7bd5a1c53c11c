package auth

import (
	"testing"
	"time"

	"github.com/kaenova/prompty/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	user := &models.User{ID: "u1", Email: "a@example.com", Role: models.RoleAdmin}

	token, expires, err := iss.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestVerifyRejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, _, err := iss.Issue(&models.User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewIssuer("other-secret", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(&models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = iss.Verify(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
