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

// MembershipStore implements store.MembershipStore using PostgreSQL.
// The (user, organization) uniqueness constraint in the schema is the
// concurrency-safety mechanism: no application-level locking exists, the
// loser of a duplicate insert race receives ErrMembershipAlreadyExists.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a new PostgreSQL-backed membership store.
func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{
		pool: pool,
	}
}

// Create inserts a membership row.
func (s *MembershipStore) Create(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO memberships (
			membership_id, user_id, org_id, role, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.pool.Exec(ctx, query,
		m.MembershipID,
		m.UserID,
		m.OrgID,
		string(m.Role),
		m.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "memberships_user_id_org_id_key") {
			return store.ErrMembershipAlreadyExists
		}
		return mapPostgresError(err)
	}

	log.Debug().
		Str("user_id", m.UserID.String()).
		Str("org_id", m.OrgID.String()).
		Str("role", string(m.Role)).
		Msg("Created membership")

	return nil
}

// Get retrieves the membership for a (user, organization) pair.
func (s *MembershipStore) Get(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT membership_id, user_id, org_id, role, created_at
		FROM memberships
		WHERE user_id = $1 AND org_id = $2
	`

	var m models.Membership
	var role string
	err := s.pool.QueryRow(ctx, query, userID, orgID).Scan(
		&m.MembershipID,
		&m.UserID,
		&m.OrgID,
		&role,
		&m.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.Role = models.Role(role)
	return &m, nil
}

// ListByUser returns all memberships for a user, oldest first. The resolver
// relies on this ordering for the first-membership fallback.
func (s *MembershipStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	query := `
		SELECT membership_id, user_id, org_id, role, created_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	return s.list(ctx, query, userID)
}

// ListByOrg returns all memberships for an organization, oldest first.
func (s *MembershipStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	query := `
		SELECT membership_id, user_id, org_id, role, created_at
		FROM memberships
		WHERE org_id = $1
		ORDER BY created_at ASC
	`

	return s.list(ctx, query, orgID)
}

// UpdateRole changes the role of an existing membership.
func (s *MembershipStore) UpdateRole(ctx context.Context, userID, orgID uuid.UUID, role models.Role) error {
	query := `
		UPDATE memberships SET role = $3
		WHERE user_id = $1 AND org_id = $2
	`

	result, err := s.pool.Exec(ctx, query, userID, orgID, string(role))
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrMembershipNotFound
	}

	return nil
}

// Delete removes a membership row (member removal).
func (s *MembershipStore) Delete(ctx context.Context, userID, orgID uuid.UUID) error {
	query := `DELETE FROM memberships WHERE user_id = $1 AND org_id = $2`

	result, err := s.pool.Exec(ctx, query, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrMembershipNotFound
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("org_id", orgID.String()).
		Msg("Deleted membership")

	return nil
}

func (s *MembershipStore) list(ctx context.Context, query string, arg any) ([]*models.Membership, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		var m models.Membership
		var role string
		err := rows.Scan(
			&m.MembershipID,
			&m.UserID,
			&m.OrgID,
			&role,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	return out, nil
}
