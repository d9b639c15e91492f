package crm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func newCRMFixture(t *testing.T) (*Service, uuid.UUID) {
	t.Helper()

	service, err := NewService(memory.NewStores())
	require.NoError(t, err)

	orgID, err := uuid.NewV7()
	require.NoError(t, err)

	return service, orgID
}

func TestCreateCompany(t *testing.T) {
	service, orgID := newCRMFixture(t)
	ctx := context.Background()

	company, err := service.CreateCompany(ctx, orgID, CompanyInput{
		Name:   "Solar Grid",
		Stage:  "seed",
		Sector: "energy",
	})
	require.NoError(t, err)
	require.Equal(t, orgID, company.OrgID)
	require.Equal(t, "Solar Grid", company.Name)

	_, err = service.CreateCompany(ctx, orgID, CompanyInput{Name: "  "})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = service.CreateCompany(ctx, orgID, CompanyInput{Name: "Bad Stage", Stage: "unicorn"})
	require.ErrorIs(t, err, ErrInvalidStage)
}

func TestCompanies_orgScoped(t *testing.T) {
	service, orgID := newCRMFixture(t)
	ctx := context.Background()

	otherOrg, err := uuid.NewV7()
	require.NoError(t, err)

	company, err := service.CreateCompany(ctx, orgID, CompanyInput{Name: "Mine", Stage: "seed"})
	require.NoError(t, err)

	// Another organization cannot see or touch the company.
	_, err = service.GetCompany(ctx, otherOrg, company.CompanyID)
	require.ErrorIs(t, err, store.ErrCompanyNotFound)

	require.ErrorIs(t, service.DeleteCompany(ctx, otherOrg, company.CompanyID), store.ErrCompanyNotFound)

	list, err := service.ListCompanies(ctx, otherOrg)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUpdateCompany(t *testing.T) {
	service, orgID := newCRMFixture(t)
	ctx := context.Background()

	company, err := service.CreateCompany(ctx, orgID, CompanyInput{Name: "Early Co", Stage: "applied"})
	require.NoError(t, err)

	updated, err := service.UpdateCompany(ctx, orgID, company.CompanyID, CompanyInput{Stage: "accepted"})
	require.NoError(t, err)
	require.Equal(t, "accepted", updated.Stage)
	require.Equal(t, "Early Co", updated.Name)

	_, err = service.UpdateCompany(ctx, orgID, company.CompanyID, CompanyInput{Stage: "unicorn"})
	require.ErrorIs(t, err, ErrInvalidStage)
}

func TestContacts(t *testing.T) {
	service, orgID := newCRMFixture(t)
	ctx := context.Background()

	company, err := service.CreateCompany(ctx, orgID, CompanyInput{Name: "Contact Co", Stage: "seed"})
	require.NoError(t, err)

	contact, err := service.CreateContact(ctx, orgID, ContactInput{
		CompanyID: company.CompanyID,
		Name:      "Ada Founder",
		Email:     "ada@contactco.example",
		Title:     "CEO",
	})
	require.NoError(t, err)

	contacts, err := service.ListContacts(ctx, orgID, company.CompanyID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, contact.ContactID, contacts[0].ContactID)

	// A contact cannot be attached to a company outside the organization.
	otherOrg, err := uuid.NewV7()
	require.NoError(t, err)
	_, err = service.CreateContact(ctx, otherOrg, ContactInput{
		CompanyID: company.CompanyID,
		Name:      "Intruder",
	})
	require.ErrorIs(t, err, store.ErrCompanyNotFound)
}

func TestLogInteraction(t *testing.T) {
	service, orgID := newCRMFixture(t)
	ctx := context.Background()

	authorID, err := uuid.NewV7()
	require.NoError(t, err)

	company, err := service.CreateCompany(ctx, orgID, CompanyInput{Name: "Meeting Co", Stage: "seed"})
	require.NoError(t, err)

	occurred := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	t.Run("extracts commitment from notes", func(t *testing.T) {
		interaction, err := service.LogInteraction(ctx, orgID, authorID, InteractionInput{
			CompanyID:  company.CompanyID,
			Kind:       "meeting",
			Notes:      "Founder will send the revised deck by 2026-04-01.",
			OccurredAt: occurred,
		})
		require.NoError(t, err)
		require.NotNil(t, interaction.CommitmentDue)
		require.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), *interaction.CommitmentDue)
	})

	t.Run("explicit commitment wins over notes", func(t *testing.T) {
		explicit := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
		interaction, err := service.LogInteraction(ctx, orgID, authorID, InteractionInput{
			CompanyID:     company.CompanyID,
			Kind:          "call",
			Notes:         "Deck due 2026-04-01.",
			OccurredAt:    occurred,
			CommitmentDue: &explicit,
		})
		require.NoError(t, err)
		require.Equal(t, explicit, *interaction.CommitmentDue)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := service.LogInteraction(ctx, orgID, authorID, InteractionInput{
			CompanyID: company.CompanyID,
			Notes:     "  ",
		})
		require.ErrorIs(t, err, ErrNotesRequired)

		_, err = service.LogInteraction(ctx, orgID, authorID, InteractionInput{
			CompanyID: company.CompanyID,
			Kind:      "smoke-signal",
			Notes:     "hello",
		})
		require.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestOpenCommitments(t *testing.T) {
	service, orgID := newCRMFixture(t)
	ctx := context.Background()

	authorID, err := uuid.NewV7()
	require.NoError(t, err)

	company, err := service.CreateCompany(ctx, orgID, CompanyInput{Name: "Commit Co", Stage: "seed"})
	require.NoError(t, err)

	occurred := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

	_, err = service.LogInteraction(ctx, orgID, authorID, InteractionInput{
		CompanyID:  company.CompanyID,
		Notes:      "Metrics due 2026-03-15.",
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	_, err = service.LogInteraction(ctx, orgID, authorID, InteractionInput{
		CompanyID:  company.CompanyID,
		Notes:      "Deck due 2026-06-01.",
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	_, err = service.LogInteraction(ctx, orgID, authorID, InteractionInput{
		CompanyID:  company.CompanyID,
		Notes:      "Nothing promised.",
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	due, err := service.OpenCommitments(ctx, orgID, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Contains(t, due[0].Notes, "Metrics")
}
