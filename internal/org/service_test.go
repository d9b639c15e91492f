package org

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *store.Stores) {
	t.Helper()

	stores := memory.NewStores()
	service, err := NewService(stores)
	require.NoError(t, err)

	return service, stores
}

func TestDefaultSettings(t *testing.T) {
	settings, err := DefaultSettings()
	require.NoError(t, err)

	require.True(t, settings.FeatureFlags["crm"])
	require.True(t, settings.FeatureFlags["invitations"])
	require.False(t, settings.FeatureFlags["ai_summaries"])

	// New organizations start with no AI features at all.
	require.Empty(t, settings.AIFeatures)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Impact Labs", "impact-labs"},
		{"  Impact   Labs  ", "impact-labs"},
		{"Impact & Labs!", "impact-labs"},
		{"UPPER", "upper"},
		{"accélérateur 42", "accélérateur-42"},
		{"---", ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Slugify(tt.name), "Slugify(%q)", tt.name)
	}
}

func TestCreate(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	userID, err := uuid.NewV7()
	require.NoError(t, err)

	org, membership, err := service.Create(ctx, "Impact Labs", userID)
	require.NoError(t, err)

	require.Equal(t, "Impact Labs", org.Name)
	require.Equal(t, "impact-labs", org.Slug)
	require.True(t, org.Settings.FeatureFlags["crm"])

	require.Equal(t, userID, membership.UserID)
	require.Equal(t, org.OrgID, membership.OrgID)
	require.Equal(t, models.RoleOwner, membership.Role)

	stored, err := stores.Organizations.GetBySlug(ctx, "impact-labs")
	require.NoError(t, err)
	require.Equal(t, org.OrgID, stored.OrgID)
}

func TestCreate_nameValidation(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()

	userID, err := uuid.NewV7()
	require.NoError(t, err)

	_, _, err = service.Create(ctx, " a ", userID)
	require.ErrorIs(t, err, ErrNameTooShort)

	_, _, err = service.Create(ctx, "!!", userID)
	require.ErrorIs(t, err, ErrNameTooShort)
}

func TestCreate_slugCollision(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()

	firstOwner, err := uuid.NewV7()
	require.NoError(t, err)
	secondOwner, err := uuid.NewV7()
	require.NoError(t, err)

	first, _, err := service.Create(ctx, "Impact Labs", firstOwner)
	require.NoError(t, err)
	require.Equal(t, "impact-labs", first.Slug)

	second, _, err := service.Create(ctx, "Impact Labs", secondOwner)
	require.NoError(t, err)
	require.Equal(t, "impact-labs-2", second.Slug)
	require.NotEqual(t, first.OrgID, second.OrgID)
}

func TestDelete_requiresConfirmationLiteral(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	userID, err := uuid.NewV7()
	require.NoError(t, err)

	org, _, err := service.Create(ctx, "Doomed Org", userID)
	require.NoError(t, err)

	for _, confirmation := range []string{"", "delete", "DELETE ", "Doomed Org"} {
		err := service.Delete(ctx, org.OrgID, userID, confirmation)
		require.ErrorIs(t, err, ErrConfirmationMismatch, "confirmation %q", confirmation)
	}

	// The organization is untouched after failed attempts.
	_, err = stores.Organizations.Get(ctx, org.OrgID)
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, org.OrgID, userID, DeleteConfirmation))

	_, err = stores.Organizations.Get(ctx, org.OrgID)
	require.ErrorIs(t, err, store.ErrOrganizationNotFound)
}

func TestDelete_ownerOnly(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	ownerID, err := uuid.NewV7()
	require.NoError(t, err)
	editorID, err := uuid.NewV7()
	require.NoError(t, err)
	strangerID, err := uuid.NewV7()
	require.NoError(t, err)

	org, _, err := service.Create(ctx, "Protected Org", ownerID)
	require.NoError(t, err)

	membershipID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, stores.Memberships.Create(ctx, &models.Membership{
		MembershipID: membershipID,
		UserID:       editorID,
		OrgID:        org.OrgID,
		Role:         models.RoleEditor,
		CreatedAt:    time.Now(),
	}))

	require.ErrorIs(t, service.Delete(ctx, org.OrgID, editorID, DeleteConfirmation), ErrNotOwner)
	require.ErrorIs(t, service.Delete(ctx, org.OrgID, strangerID, DeleteConfirmation), ErrNotOwner)

	_, err = stores.Organizations.Get(ctx, org.OrgID)
	require.NoError(t, err)
}

func TestDelete_cascades(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	userID, err := uuid.NewV7()
	require.NoError(t, err)

	org, _, err := service.Create(ctx, "Cascade Org", userID)
	require.NoError(t, err)

	companyID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, stores.Companies.Create(ctx, &models.Company{
		CompanyID: companyID,
		OrgID:     org.OrgID,
		Name:      "Portfolio Co",
		Stage:     "seed",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))

	require.NoError(t, service.Delete(ctx, org.OrgID, userID, DeleteConfirmation))

	_, err = stores.Companies.Get(ctx, org.OrgID, companyID)
	require.ErrorIs(t, err, store.ErrCompanyNotFound)

	_, err = stores.Memberships.Get(ctx, userID, org.OrgID)
	require.ErrorIs(t, err, store.ErrMembershipNotFound)
}

func TestRename(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()

	ownerID, err := uuid.NewV7()
	require.NoError(t, err)
	strangerID, err := uuid.NewV7()
	require.NoError(t, err)

	org, _, err := service.Create(ctx, "Old Name", ownerID)
	require.NoError(t, err)

	renamed, err := service.Rename(ctx, org.OrgID, ownerID, "New Name")
	require.NoError(t, err)
	require.Equal(t, "New Name", renamed.Name)
	// The slug does not change with the name.
	require.Equal(t, "old-name", renamed.Slug)

	_, err = service.Rename(ctx, org.OrgID, strangerID, "Hijacked")
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestListForUser(t *testing.T) {
	service, _ := newService(t)
	ctx := context.Background()

	userID, err := uuid.NewV7()
	require.NoError(t, err)

	first, _, err := service.Create(ctx, "First Org", userID)
	require.NoError(t, err)
	second, _, err := service.Create(ctx, "Second Org", userID)
	require.NoError(t, err)

	orgs, err := service.ListForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	require.Equal(t, first.OrgID, orgs[0].Organization.OrgID)
	require.Equal(t, second.OrgID, orgs[1].Organization.OrgID)
	require.Equal(t, models.RoleOwner, orgs[0].Role)
}

func TestUpdateMemberRole_lastOwnerGuard(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	ownerID, err := uuid.NewV7()
	require.NoError(t, err)
	editorID, err := uuid.NewV7()
	require.NoError(t, err)

	org, _, err := service.Create(ctx, "Guarded Org", ownerID)
	require.NoError(t, err)

	membershipID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, stores.Memberships.Create(ctx, &models.Membership{
		MembershipID: membershipID,
		UserID:       editorID,
		OrgID:        org.OrgID,
		Role:         models.RoleEditor,
		CreatedAt:    time.Now(),
	}))

	// The only owner cannot step down.
	require.ErrorIs(t, service.UpdateMemberRole(ctx, org.OrgID, ownerID, models.RoleEditor), ErrLastOwner)
	require.ErrorIs(t, service.RemoveMember(ctx, org.OrgID, ownerID), ErrLastOwner)

	// Promote the editor, then the original owner can step down.
	require.NoError(t, service.UpdateMemberRole(ctx, org.OrgID, editorID, models.RoleOwner))
	require.NoError(t, service.UpdateMemberRole(ctx, org.OrgID, ownerID, models.RoleViewer))

	m, err := stores.Memberships.Get(ctx, ownerID, org.OrgID)
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, m.Role)

	require.ErrorIs(t, service.UpdateMemberRole(ctx, org.OrgID, ownerID, models.Role("superuser")), ErrInvalidRole)
}

func TestRemoveMember(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	ownerID, err := uuid.NewV7()
	require.NoError(t, err)
	viewerID, err := uuid.NewV7()
	require.NoError(t, err)

	org, _, err := service.Create(ctx, "Removal Org", ownerID)
	require.NoError(t, err)

	membershipID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, stores.Memberships.Create(ctx, &models.Membership{
		MembershipID: membershipID,
		UserID:       viewerID,
		OrgID:        org.OrgID,
		Role:         models.RoleViewer,
		CreatedAt:    time.Now(),
	}))

	require.NoError(t, service.RemoveMember(ctx, org.OrgID, viewerID))

	_, err = stores.Memberships.Get(ctx, viewerID, org.OrgID)
	require.ErrorIs(t, err, store.ErrMembershipNotFound)
}

func TestMembers(t *testing.T) {
	service, stores := newService(t)
	ctx := context.Background()

	ownerID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, stores.Users.Create(ctx, &models.User{
		UserID:    ownerID,
		Email:     "owner@example.com",
		FirstName: "Org",
		LastName:  "Owner",
		CreatedAt: now,
		UpdatedAt: now,
	}))

	org, _, err := service.Create(ctx, "Member Org", ownerID)
	require.NoError(t, err)

	members, err := service.Members(ctx, org.OrgID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "owner@example.com", members[0].User.Email)
	require.Equal(t, models.RoleOwner, members[0].Role)
}
