package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/identity"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/store/memory"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	service  *Service
	stores   *store.Stores
	provider *identity.Local
	orgID    uuid.UUID
	ownerID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stores := memory.NewStores()

	provider, err := identity.NewLocal(testSecret, time.Hour)
	require.NoError(t, err)

	service, err := NewService(stores, provider, LogMailer{}, "https://app.example.com")
	require.NoError(t, err)

	orgID, err := uuid.NewV7()
	require.NoError(t, err)
	ownerID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, stores.Organizations.Create(context.Background(), &models.Organization{
		OrgID:     orgID,
		Name:      "Impact Labs",
		Slug:      "impact-labs",
		CreatedAt: now,
		UpdatedAt: now,
	}))

	return &fixture{
		service:  service,
		stores:   stores,
		provider: provider,
		orgID:    orgID,
		ownerID:  ownerID,
	}
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invitation, err := f.service.Issue(ctx, f.orgID, "newhire@example.com", models.RoleEditor, f.ownerID)
	require.NoError(t, err)

	require.NotEmpty(t, invitation.Token)
	require.Equal(t, f.orgID, invitation.OrgID)
	require.Equal(t, models.RoleEditor, invitation.Role)
	require.False(t, invitation.IsAccepted())
	require.False(t, invitation.IsExpired())
	require.WithinDuration(t, time.Now().Add(TTL), invitation.ExpiresAt, time.Minute)

	// Tokens are unique per invitation.
	second, err := f.service.Issue(ctx, f.orgID, "other@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)
	require.NotEqual(t, invitation.Token, second.Token)
}

func TestIssue_invalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Issue(ctx, f.orgID, "newhire@example.com", models.Role("superuser"), f.ownerID)
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = f.service.Issue(ctx, f.orgID, "not-an-email", models.RoleViewer, f.ownerID)
	require.Error(t, err)

	unknownOrg, err := uuid.NewV7()
	require.NoError(t, err)
	_, err = f.service.Issue(ctx, unknownOrg, "newhire@example.com", models.RoleViewer, f.ownerID)
	require.Error(t, err)
}

func TestValidate_ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		_, _, err := f.service.Validate(ctx, "no-such-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("already used", func(t *testing.T) {
		invitation, err := f.service.Issue(ctx, f.orgID, "used@example.com", models.RoleViewer, f.ownerID)
		require.NoError(t, err)
		require.NoError(t, f.stores.Invitations.MarkAccepted(ctx, invitation.InvitationID, time.Now()))

		_, _, err = f.service.Validate(ctx, invitation.Token)
		require.ErrorIs(t, err, ErrAlreadyUsed)
	})

	t.Run("expired", func(t *testing.T) {
		invitation, err := f.service.Issue(ctx, f.orgID, "late@example.com", models.RoleViewer, f.ownerID)
		require.NoError(t, err)

		invitation.ExpiresAt = time.Now().Add(-time.Hour)
		// Re-create with the past expiry to simulate age.
		require.NoError(t, f.stores.Invitations.Delete(ctx, invitation.InvitationID))
		require.NoError(t, f.stores.Invitations.Create(ctx, invitation))

		_, _, err = f.service.Validate(ctx, invitation.Token)
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("valid returns organization", func(t *testing.T) {
		invitation, err := f.service.Issue(ctx, f.orgID, "fine@example.com", models.RoleViewer, f.ownerID)
		require.NoError(t, err)

		inv, org, err := f.service.Validate(ctx, invitation.Token)
		require.NoError(t, err)
		require.Equal(t, invitation.InvitationID, inv.InvitationID)
		require.Equal(t, "Impact Labs", org.Name)
	})
}

func TestAccept_newUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invitation, err := f.service.Issue(ctx, f.orgID, "newhire@example.com", models.RoleEditor, f.ownerID)
	require.NoError(t, err)

	membership, err := f.service.Accept(ctx, invitation.Token, "newhire@example.com", "s3cret-pass", "New", "Hire")
	require.NoError(t, err)
	require.Equal(t, f.orgID, membership.OrgID)
	require.Equal(t, models.RoleEditor, membership.Role)

	// The provider account exists and can sign in.
	session, err := f.provider.SignIn(ctx, "newhire@example.com", "s3cret-pass")
	require.NoError(t, err)

	// The local profile mirrors the provider account.
	user, err := f.stores.Users.GetByEmail(ctx, "newhire@example.com")
	require.NoError(t, err)
	require.Equal(t, session.User.ID, user.UserID)
	require.Equal(t, "New", user.FirstName)

	// The token is consumed.
	_, _, err = f.service.Validate(ctx, invitation.Token)
	require.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestAccept_emailMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invitation, err := f.service.Issue(ctx, f.orgID, "invited@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, invitation.Token, "intruder@example.com", "s3cret-pass", "Some", "Body")
	require.ErrorIs(t, err, ErrEmailMismatch)

	// Case and whitespace differences are not a mismatch.
	_, err = f.service.Accept(ctx, invitation.Token, "  Invited@Example.COM ", "s3cret-pass", "In", "Vited")
	require.NoError(t, err)
}

func TestAccept_existingAccountRequiresPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The invited address already has an account.
	providerUser, err := f.provider.SignUp(ctx, "victim@example.com", "victim-pass")
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, f.stores.Users.Create(ctx, &models.User{
		UserID:    providerUser.ID,
		Email:     providerUser.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	invitation, err := f.service.Issue(ctx, f.orgID, "victim@example.com", models.RoleEditor, f.ownerID)
	require.NoError(t, err)

	// Holding the emailed link is not enough: a password that does not match
	// the existing account grants nothing.
	_, err = f.service.Accept(ctx, invitation.Token, "victim@example.com", "attacker-pass", "Some", "Body")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = f.stores.Memberships.Get(ctx, providerUser.ID, f.orgID)
	require.ErrorIs(t, err, store.ErrMembershipNotFound)

	// The invitation stays open for the real owner.
	_, _, err = f.service.Validate(ctx, invitation.Token)
	require.NoError(t, err)

	// The matching password joins the existing account.
	membership, err := f.service.Accept(ctx, invitation.Token, "victim@example.com", "victim-pass", "", "")
	require.NoError(t, err)
	require.Equal(t, providerUser.ID, membership.UserID)
	require.Equal(t, models.RoleEditor, membership.Role)
}

func TestAccept_singleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invitation, err := f.service.Issue(ctx, f.orgID, "once@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, invitation.Token, "once@example.com", "s3cret-pass", "Only", "Once")
	require.NoError(t, err)

	_, err = f.service.Accept(ctx, invitation.Token, "once@example.com", "s3cret-pass", "Only", "Once")
	require.ErrorIs(t, err, ErrAlreadyUsed)
}

// failingMembershipStore wraps the memory store and refuses creates, forcing
// the acceptance saga down its compensation path.
type failingMembershipStore struct {
	store.MembershipStore
}

func (failingMembershipStore) Create(ctx context.Context, m *models.Membership) error {
	return errors.New("write failed")
}

func TestAccept_compensatesProviderAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stores.Memberships = failingMembershipStore{f.stores.Memberships}
	service, err := NewService(f.stores, f.provider, LogMailer{}, "https://app.example.com")
	require.NoError(t, err)

	invitation, err := service.Issue(ctx, f.orgID, "doomed@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)

	_, err = service.Accept(ctx, invitation.Token, "doomed@example.com", "s3cret-pass", "Doo", "Med")
	require.Error(t, err)

	// The provider account was rolled back, so the address is free again.
	_, err = f.provider.SignIn(ctx, "doomed@example.com", "s3cret-pass")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)

	// And the local mirror is gone too.
	_, err = f.stores.Users.GetByEmail(ctx, "doomed@example.com")
	require.ErrorIs(t, err, store.ErrUserNotFound)

	// The invitation is still open for a retry.
	_, _, err = service.Validate(ctx, invitation.Token)
	require.NoError(t, err)
}

func TestAcceptAsUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Now()
	user := &models.User{
		UserID:    userID,
		Email:     "existing@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.stores.Users.Create(ctx, user))

	invitation, err := f.service.Issue(ctx, f.orgID, "existing@example.com", models.RoleOwner, f.ownerID)
	require.NoError(t, err)

	membership, err := f.service.AcceptAsUser(ctx, invitation.Token, user)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, membership.Role)
	require.Equal(t, userID, membership.UserID)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invitation, err := f.service.Issue(ctx, f.orgID, "gone@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)

	require.NoError(t, f.service.Revoke(ctx, invitation.InvitationID))

	_, _, err = f.service.Validate(ctx, invitation.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.ErrorIs(t, f.service.Revoke(ctx, invitation.InvitationID), ErrInvalidToken)
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open, err := f.service.Issue(ctx, f.orgID, "open@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)

	accepted, err := f.service.Issue(ctx, f.orgID, "done@example.com", models.RoleViewer, f.ownerID)
	require.NoError(t, err)
	require.NoError(t, f.stores.Invitations.MarkAccepted(ctx, accepted.InvitationID, time.Now()))

	pending, err := f.service.ListPending(ctx, f.orgID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, open.InvitationID, pending[0].InvitationID)
}
