package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// CompanyStore implements store.CompanyStore using PostgreSQL. Every
// operation runs with app.org_id pinned so the companies RLS policy applies
// even if a query were written without an org_id predicate.
type CompanyStore struct {
	pool *pgxpool.Pool
}

// NewCompanyStore creates a new PostgreSQL-backed company store.
func NewCompanyStore(pool *pgxpool.Pool) *CompanyStore {
	return &CompanyStore{
		pool: pool,
	}
}

// Create persists a new company.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (
			company_id, org_id, name, stage, sector, website, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	err := withOrg(ctx, s.pool, company.OrgID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			company.CompanyID,
			company.OrgID,
			company.Name,
			company.Stage,
			company.Sector,
			company.Website,
			company.CreatedAt,
			company.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("company_id", company.CompanyID.String()).
		Str("org_id", company.OrgID.String()).
		Msg("Created company")

	return nil
}

// Get retrieves a company scoped to the organization.
func (s *CompanyStore) Get(ctx context.Context, orgID, companyID uuid.UUID) (*models.Company, error) {
	query := `
		SELECT company_id, org_id, name, stage, sector, website, created_at, updated_at
		FROM companies
		WHERE company_id = $1
	`

	var company models.Company
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, companyID).Scan(
			&company.CompanyID,
			&company.OrgID,
			&company.Name,
			&company.Stage,
			&company.Sector,
			&company.Website,
			&company.CreatedAt,
			&company.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &company, nil
}

// List returns all companies for the organization, by name.
func (s *CompanyStore) List(ctx context.Context, orgID uuid.UUID) ([]*models.Company, error) {
	query := `
		SELECT company_id, org_id, name, stage, sector, website, created_at, updated_at
		FROM companies
		ORDER BY name ASC
	`

	var out []*models.Company
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var company models.Company
			err := rows.Scan(
				&company.CompanyID,
				&company.OrgID,
				&company.Name,
				&company.Stage,
				&company.Sector,
				&company.Website,
				&company.CreatedAt,
				&company.UpdatedAt,
			)
			if err != nil {
				return err
			}
			out = append(out, &company)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	return out, nil
}

// Update replaces a stored company.
func (s *CompanyStore) Update(ctx context.Context, company *models.Company) error {
	query := `
		UPDATE companies SET
			name = $2,
			stage = $3,
			sector = $4,
			website = $5,
			updated_at = now()
		WHERE company_id = $1
	`

	var affected int64
	err := withOrg(ctx, s.pool, company.OrgID, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query,
			company.CompanyID,
			company.Name,
			company.Stage,
			company.Sector,
			company.Website,
		)
		if err != nil {
			return err
		}
		affected = result.RowsAffected()
		return nil
	})

	if err != nil {
		return mapPostgresError(err)
	}

	if affected == 0 {
		return store.ErrCompanyNotFound
	}

	return nil
}

// Delete removes a company scoped to the organization. Contacts and
// interactions cascade.
func (s *CompanyStore) Delete(ctx context.Context, orgID, companyID uuid.UUID) error {
	query := `DELETE FROM companies WHERE company_id = $1`

	var affected int64
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, companyID)
		if err != nil {
			return err
		}
		affected = result.RowsAffected()
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}

	if affected == 0 {
		return store.ErrCompanyNotFound
	}

	return nil
}
