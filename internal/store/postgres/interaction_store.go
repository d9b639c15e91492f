package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InteractionStore implements store.InteractionStore using PostgreSQL.
type InteractionStore struct {
	pool *pgxpool.Pool
}

// NewInteractionStore creates a new PostgreSQL-backed interaction store.
func NewInteractionStore(pool *pgxpool.Pool) *InteractionStore {
	return &InteractionStore{
		pool: pool,
	}
}

// Create persists a new interaction.
func (s *InteractionStore) Create(ctx context.Context, interaction *models.Interaction) error {
	query := `
		INSERT INTO interactions (
			interaction_id, org_id, company_id, author_id, kind, notes,
			occurred_at, commitment_due, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	err := withOrg(ctx, s.pool, interaction.OrgID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			interaction.InteractionID,
			interaction.OrgID,
			interaction.CompanyID,
			interaction.AuthorID,
			interaction.Kind,
			interaction.Notes,
			interaction.OccurredAt,
			interaction.CommitmentDue,
			interaction.CreatedAt,
		)
		return err
	})

	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// Get retrieves an interaction scoped to the organization.
func (s *InteractionStore) Get(ctx context.Context, orgID, interactionID uuid.UUID) (*models.Interaction, error) {
	query := `
		SELECT interaction_id, org_id, company_id, author_id, kind, notes,
			occurred_at, commitment_due, created_at
		FROM interactions
		WHERE interaction_id = $1
	`

	var interaction models.Interaction
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, interactionID).Scan(
			&interaction.InteractionID,
			&interaction.OrgID,
			&interaction.CompanyID,
			&interaction.AuthorID,
			&interaction.Kind,
			&interaction.Notes,
			&interaction.OccurredAt,
			&interaction.CommitmentDue,
			&interaction.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInteractionNotFound
		}
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}

	return &interaction, nil
}

// ListByCompany returns interactions for a company, newest first.
func (s *InteractionStore) ListByCompany(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Interaction, error) {
	query := `
		SELECT interaction_id, org_id, company_id, author_id, kind, notes,
			occurred_at, commitment_due, created_at
		FROM interactions
		WHERE company_id = $1
		ORDER BY occurred_at DESC
	`

	return s.list(ctx, orgID, query, companyID)
}

// ListOpenCommitments returns interactions whose commitment is due before
// the given time, newest first. Feeds the compliance report.
func (s *InteractionStore) ListOpenCommitments(ctx context.Context, orgID uuid.UUID, before time.Time) ([]*models.Interaction, error) {
	query := `
		SELECT interaction_id, org_id, company_id, author_id, kind, notes,
			occurred_at, commitment_due, created_at
		FROM interactions
		WHERE commitment_due IS NOT NULL AND commitment_due < $1
		ORDER BY occurred_at DESC
	`

	return s.list(ctx, orgID, query, before)
}

// Delete removes an interaction scoped to the organization.
func (s *InteractionStore) Delete(ctx context.Context, orgID, interactionID uuid.UUID) error {
	query := `DELETE FROM interactions WHERE interaction_id = $1`

	var affected int64
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, interactionID)
		if err != nil {
			return err
		}
		affected = result.RowsAffected()
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to delete interaction: %w", err)
	}

	if affected == 0 {
		return store.ErrInteractionNotFound
	}

	return nil
}

func (s *InteractionStore) list(ctx context.Context, orgID uuid.UUID, query string, arg any) ([]*models.Interaction, error) {
	var out []*models.Interaction
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var interaction models.Interaction
			err := rows.Scan(
				&interaction.InteractionID,
				&interaction.OrgID,
				&interaction.CompanyID,
				&interaction.AuthorID,
				&interaction.Kind,
				&interaction.Notes,
				&interaction.OccurredAt,
				&interaction.CommitmentDue,
				&interaction.CreatedAt,
			)
			if err != nil {
				return err
			}
			out = append(out, &interaction)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	return out, nil
}
