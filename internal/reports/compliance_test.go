package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func TestWriteComplianceCSV(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()

	service, err := NewService(stores)
	require.NoError(t, err)

	orgID, err := uuid.NewV7()
	require.NoError(t, err)
	authorID, err := uuid.NewV7()
	require.NoError(t, err)

	companyID, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, stores.Companies.Create(ctx, &models.Company{
		CompanyID: companyID,
		OrgID:     orgID,
		Name:      "Solar Grid",
		Stage:     "seed",
		Sector:    "energy",
		CreatedAt: now,
		UpdatedAt: now,
	}))

	overdueBy10 := now.AddDate(0, 0, -10)
	occurred := now.AddDate(0, 0, -30)

	interactionID, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, stores.Interactions.Create(ctx, &models.Interaction{
		InteractionID: interactionID,
		OrgID:         orgID,
		CompanyID:     companyID,
		AuthorID:      authorID,
		Kind:          "meeting",
		Notes:         "Metrics promised",
		OccurredAt:    occurred,
		CommitmentDue: &overdueBy10,
		CreatedAt:     occurred,
	}))

	// A future commitment stays out of the report.
	futureID, err := uuid.NewV7()
	require.NoError(t, err)
	future := now.AddDate(0, 1, 0)
	require.NoError(t, stores.Interactions.Create(ctx, &models.Interaction{
		InteractionID: futureID,
		OrgID:         orgID,
		CompanyID:     companyID,
		AuthorID:      authorID,
		Kind:          "call",
		Notes:         "Deck promised later",
		OccurredAt:    occurred,
		CommitmentDue: &future,
		CreatedAt:     occurred,
	}))

	var buf bytes.Buffer
	require.NoError(t, service.WriteComplianceCSV(ctx, &buf, orgID, now))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, complianceHeader, records[0])

	row := records[1]
	require.Equal(t, "Solar Grid", row[0])
	require.Equal(t, "seed", row[1])
	require.Equal(t, "energy", row[2])
	require.Equal(t, "meeting", row[3])
	require.Equal(t, overdueBy10.Format("2006-01-02"), row[5])
	require.Equal(t, "10", row[6])
	require.Equal(t, "Metrics promised", row[7])
}

func TestWriteComplianceCSV_emptyOrg(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStores()

	service, err := NewService(stores)
	require.NoError(t, err)

	orgID, err := uuid.NewV7()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, service.WriteComplianceCSV(ctx, &buf, orgID, time.Now()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestFilename(t *testing.T) {
	asOf := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "compliance-impact-labs-2026-04-01.csv", Filename("impact-labs", asOf))
}
