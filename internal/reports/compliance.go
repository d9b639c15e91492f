// Package reports builds downloadable exports over tenant data. The only
// report so far is the compliance export of overdue commitments.
package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
)

type Service struct {
	companies    store.CompanyStore
	interactions store.InteractionStore
}

func NewService(stores *store.Stores) (*Service, error) {
	if stores == nil {
		return nil, fmt.Errorf("stores are required")
	}
	return &Service{
		companies:    stores.Companies,
		interactions: stores.Interactions,
	}, nil
}

var complianceHeader = []string{
	"company",
	"stage",
	"sector",
	"interaction_kind",
	"occurred_at",
	"commitment_due",
	"days_overdue",
	"notes",
}

// WriteComplianceCSV writes the overdue-commitments report as CSV. Each row
// is one interaction whose commitment fell due before asOf, joined with its
// company. Rows arrive newest commitment first, as the store returns them.
func (s *Service) WriteComplianceCSV(ctx context.Context, w io.Writer, orgID uuid.UUID, asOf time.Time) error {
	overdue, err := s.interactions.ListOpenCommitments(ctx, orgID, asOf)
	if err != nil {
		return fmt.Errorf("failed to list open commitments: %w", err)
	}

	companies := make(map[uuid.UUID]*models.Company)

	cw := csv.NewWriter(w)
	if err := cw.Write(complianceHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, interaction := range overdue {
		company, ok := companies[interaction.CompanyID]
		if !ok {
			company, err = s.companies.Get(ctx, orgID, interaction.CompanyID)
			if err != nil {
				return fmt.Errorf("failed to load company for report: %w", err)
			}
			companies[interaction.CompanyID] = company
		}

		daysOverdue := int(asOf.Sub(*interaction.CommitmentDue).Hours() / 24)
		if daysOverdue < 0 {
			daysOverdue = 0
		}

		row := []string{
			company.Name,
			company.Stage,
			company.Sector,
			interaction.Kind,
			interaction.OccurredAt.UTC().Format(time.RFC3339),
			interaction.CommitmentDue.UTC().Format("2006-01-02"),
			strconv.Itoa(daysOverdue),
			interaction.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Filename names the download for an organization slug and date.
func Filename(slug string, asOf time.Time) string {
	return fmt.Sprintf("compliance-%s-%s.csv", slug, asOf.UTC().Format("2006-01-02"))
}
