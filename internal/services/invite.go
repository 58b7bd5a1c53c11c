package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kaenova/prompty/internal/models"
	"github.com/kaenova/prompty/internal/store"
	apperrors "github.com/kaenova/prompty/pkg/errors"
)

// DefaultInviteTTL is how long an invite stays redeemable.
const DefaultInviteTTL = 7 * 24 * time.Hour

var errInvalidInvite = apperrors.NotFound("invalid_invite", "Invite is invalid or has expired")

// InviteService handles single-use invites that provision accounts
type InviteService struct {
	Deps
	ttl time.Duration
}

// NewInviteService creates a new InviteService
func NewInviteService(d Deps, ttl time.Duration) *InviteService {
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	return &InviteService{Deps: d.withDefaults(), ttl: ttl}
}

// Create issues an invite for a new user with the given role. Admin only.
func (s *InviteService) Create(ctx context.Context, name string, role models.Role, actingUserID string) (*models.UserInvite, error) {
	if _, err := s.Authz.RequireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}
	if blank(name) {
		return nil, apperrors.Validation("invalid_name", "Name is required")
	}
	if !role.Valid() {
		return nil, apperrors.Validation("invalid_role", "Role must be admin or user")
	}

	token, err := s.Creds.NewToken()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	id, err := s.Creds.NewID()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	now := s.Now()
	invite := &models.UserInvite{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Role:      role,
		Token:     token,
		CreatedBy: actingUserID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := store.Insert(ctx, s.Store, store.Invites, invite); err != nil {
		return nil, storeError(err, "Failed to create invite")
	}
	s.Log.Info("invite created", "invite_id", invite.ID, "role", role, "by", actingUserID)
	return invite, nil
}

// Lookup returns the invite for token while it is unused and unexpired.
func (s *InviteService) Lookup(ctx context.Context, token string) (*models.UserInvite, error) {
	if blank(token) {
		return nil, errInvalidInvite
	}
	invite, err := store.FindOne[models.UserInvite](ctx, s.Store, store.Invites, store.Eq("token", token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errInvalidInvite
		}
		return nil, storeError(err, "Failed to load invite")
	}
	if !invite.Redeemable(s.Now()) {
		return nil, errInvalidInvite
	}
	return invite, nil
}

// Accept redeems an invite and creates the account it describes. The invite
// is marked used before the user is created, so concurrent redemptions of
// one token produce at most one user.
func (s *InviteService) Accept(ctx context.Context, token, email, password string) (*models.User, error) {
	invite, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := validateAccount(invite.Name, email, password); err != nil {
		return nil, err
	}
	if _, err := store.FindOne[models.User](ctx, s.Store, store.Users, store.Eq("email", normalizeEmail(email))); err == nil {
		return nil, errEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(err, "Failed to look up user")
	}

	if err := s.setUsed(ctx, invite.ID, true); err != nil {
		return nil, err
	}

	user, err := createUser(ctx, s.Deps, invite.Name, email, password, invite.Role)
	if err != nil {
		if restoreErr := s.setUsed(ctx, invite.ID, false); restoreErr != nil {
			s.Log.Error("failed to restore invite after failed redemption", "invite_id", invite.ID, "error", restoreErr)
		}
		return nil, err
	}
	s.Log.Info("invite redeemed", "invite_id", invite.ID, "user_id", user.ID)
	return user, nil
}

// setUsed flips the used flag with a versioned replace. Marking an invite
// used fails with invalid_invite when it is no longer redeemable.
func (s *InviteService) setUsed(ctx context.Context, inviteID string, used bool) error {
	err := store.RetryOnConflict(ctx, "invite.accept", func() error {
		inv, err := store.Fetch[models.UserInvite](ctx, s.Store, store.Invites, inviteID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errInvalidInvite
			}
			return err
		}
		if used && !inv.Redeemable(s.Now()) {
			return errInvalidInvite
		}
		if inv.Used == used {
			return nil
		}
		inv.Used = used
		return store.Save(ctx, s.Store, store.Invites, inv)
	})
	return storeError(err, "Failed to redeem invite")
}
