package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/stretchr/testify/require"
)

func newMembership(t *testing.T, userID, orgID uuid.UUID, role models.Role) *models.Membership {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &models.Membership{
		MembershipID: id,
		UserID:       userID,
		OrgID:        orgID,
		Role:         role,
		CreatedAt:    time.Now(),
	}
}

func TestMembershipStore_uniquePerUserAndOrg(t *testing.T) {
	ctx := context.Background()
	s := NewMembershipStore()

	userID := uuid.New()
	orgID := uuid.New()

	require.NoError(t, s.Create(ctx, newMembership(t, userID, orgID, models.RoleOwner)))

	err := s.Create(ctx, newMembership(t, userID, orgID, models.RoleViewer))
	require.ErrorIs(t, err, store.ErrMembershipAlreadyExists)

	// The winner's role is untouched.
	m, err := s.Get(ctx, userID, orgID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, m.Role)

	// The same user in a different org is a separate row.
	require.NoError(t, s.Create(ctx, newMembership(t, userID, uuid.New(), models.RoleEditor)))
}

func TestMembershipStore_listByUserOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := NewMembershipStore()

	userID := uuid.New()
	first := newMembership(t, userID, uuid.New(), models.RoleOwner)
	first.CreatedAt = time.Now().Add(-time.Hour)
	second := newMembership(t, userID, uuid.New(), models.RoleViewer)

	// Insert newest first to prove ordering comes from timestamps.
	require.NoError(t, s.Create(ctx, second))
	require.NoError(t, s.Create(ctx, first))

	listed, err := s.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, first.OrgID, listed[0].OrgID)
}

func TestSessionStore_expiry(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	userID := uuid.New()

	live := &models.Session{
		SessionID: uuid.New(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	dead := &models.Session{
		SessionID: uuid.New(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.Create(ctx, live))
	require.NoError(t, s.Create(ctx, dead))

	t.Run("get expired session", func(t *testing.T) {
		_, err := s.Get(ctx, dead.SessionID)
		require.ErrorIs(t, err, store.ErrSessionExpired)
	})

	t.Run("sweep removes only expired", func(t *testing.T) {
		removed, err := s.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		_, err = s.Get(ctx, live.SessionID)
		require.NoError(t, err)
	})

	t.Run("delete by user clears the rest", func(t *testing.T) {
		removed, err := s.DeleteByUser(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		_, err = s.Get(ctx, live.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestSessionStore_setActiveOrg(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	session := &models.Session{
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.Create(ctx, session))

	orgID := uuid.New()
	require.NoError(t, s.SetActiveOrg(ctx, session.SessionID, orgID))

	got, err := s.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.True(t, got.ActiveOrgID.Valid)
	require.Equal(t, orgID, got.ActiveOrgID.UUID)
	require.False(t, got.OrgSwitchedAt.IsZero())

	err = s.SetActiveOrg(ctx, uuid.New(), orgID)
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestInvitationStore_markAcceptedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInvitationStore()

	inv := &models.Invitation{
		InvitationID: uuid.New(),
		Token:        "token-one",
		OrgID:        uuid.New(),
		Email:        "invitee@example.com",
		Role:         models.RoleEditor,
		ExpiresAt:    time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.Create(ctx, inv))

	require.NoError(t, s.MarkAccepted(ctx, inv.InvitationID, time.Now()))

	err := s.MarkAccepted(ctx, inv.InvitationID, time.Now())
	require.ErrorIs(t, err, store.ErrInvitationAccepted)

	got, err := s.GetByToken(ctx, "token-one")
	require.NoError(t, err)
	require.NotNil(t, got.AcceptedAt)
}

func TestInvitationStore_deleteRemovesTokenLookup(t *testing.T) {
	ctx := context.Background()
	s := NewInvitationStore()

	inv := &models.Invitation{
		InvitationID: uuid.New(),
		Token:        "token-two",
		OrgID:        uuid.New(),
		Email:        "invitee@example.com",
		Role:         models.RoleViewer,
		ExpiresAt:    time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.Create(ctx, inv))
	require.NoError(t, s.Delete(ctx, inv.InvitationID))

	_, err := s.GetByToken(ctx, "token-two")
	require.ErrorIs(t, err, store.ErrInvitationNotFound)
}
