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
)

// ContactStore implements store.ContactStore using PostgreSQL.
type ContactStore struct {
	pool *pgxpool.Pool
}

// NewContactStore creates a new PostgreSQL-backed contact store.
func NewContactStore(pool *pgxpool.Pool) *ContactStore {
	return &ContactStore{
		pool: pool,
	}
}

// Create persists a new contact.
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	query := `
		INSERT INTO contacts (
			contact_id, org_id, company_id, name, email, title, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	err := withOrg(ctx, s.pool, contact.OrgID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			contact.ContactID,
			contact.OrgID,
			contact.CompanyID,
			contact.Name,
			contact.Email,
			contact.Title,
			contact.CreatedAt,
			contact.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return mapPostgresError(err)
	}

	return nil
}

// Get retrieves a contact scoped to the organization.
func (s *ContactStore) Get(ctx context.Context, orgID, contactID uuid.UUID) (*models.Contact, error) {
	query := `
		SELECT contact_id, org_id, company_id, name, email, title, created_at, updated_at
		FROM contacts
		WHERE contact_id = $1
	`

	var contact models.Contact
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, contactID).Scan(
			&contact.ContactID,
			&contact.OrgID,
			&contact.CompanyID,
			&contact.Name,
			&contact.Email,
			&contact.Title,
			&contact.CreatedAt,
			&contact.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return &contact, nil
}

// ListByCompany returns all contacts for a company, by name.
func (s *ContactStore) ListByCompany(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Contact, error) {
	query := `
		SELECT contact_id, org_id, company_id, name, email, title, created_at, updated_at
		FROM contacts
		WHERE company_id = $1
		ORDER BY name ASC
	`

	var out []*models.Contact
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, companyID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var contact models.Contact
			err := rows.Scan(
				&contact.ContactID,
				&contact.OrgID,
				&contact.CompanyID,
				&contact.Name,
				&contact.Email,
				&contact.Title,
				&contact.CreatedAt,
				&contact.UpdatedAt,
			)
			if err != nil {
				return err
			}
			out = append(out, &contact)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	return out, nil
}

// Delete removes a contact scoped to the organization.
func (s *ContactStore) Delete(ctx context.Context, orgID, contactID uuid.UUID) error {
	query := `DELETE FROM contacts WHERE contact_id = $1`

	var affected int64
	err := withOrg(ctx, s.pool, orgID, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, contactID)
		if err != nil {
			return err
		}
		affected = result.RowsAffected()
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	if affected == 0 {
		return store.ErrContactNotFound
	}

	return nil
}
