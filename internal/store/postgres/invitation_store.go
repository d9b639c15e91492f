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
	"github.com/rs/zerolog/log"
)

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore struct {
	pool *pgxpool.Pool
}

// NewInvitationStore creates a new PostgreSQL-backed invitation store.
func NewInvitationStore(pool *pgxpool.Pool) *InvitationStore {
	return &InvitationStore{
		pool: pool,
	}
}

// Create persists a new invitation.
func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (
			invitation_id, token, org_id, email, role, invited_by,
			expires_at, accepted_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		inv.InvitationID,
		inv.Token,
		inv.OrgID,
		inv.Email,
		string(inv.Role),
		inv.InvitedBy,
		inv.ExpiresAt,
		inv.AcceptedAt,
		inv.CreatedAt,
	)

	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("invitation_id", inv.InvitationID.String()).
		Str("org_id", inv.OrgID.String()).
		Str("email", inv.Email).
		Msg("Created invitation")

	return nil
}

// GetByToken retrieves an invitation by its opaque token.
func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `
		SELECT invitation_id, token, org_id, email, role, invited_by,
			expires_at, accepted_at, created_at
		FROM invitations
		WHERE token = $1
	`

	var inv models.Invitation
	var role string
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&inv.InvitationID,
		&inv.Token,
		&inv.OrgID,
		&inv.Email,
		&role,
		&inv.InvitedBy,
		&inv.ExpiresAt,
		&inv.AcceptedAt,
		&inv.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	inv.Role = models.Role(role)
	return &inv, nil
}

// ListByOrg returns all invitations for an organization, newest first.
func (s *InvitationStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	query := `
		SELECT invitation_id, token, org_id, email, role, invited_by,
			expires_at, accepted_at, created_at
		FROM invitations
		WHERE org_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []*models.Invitation
	for rows.Next() {
		var inv models.Invitation
		var role string
		err := rows.Scan(
			&inv.InvitationID,
			&inv.Token,
			&inv.OrgID,
			&inv.Email,
			&role,
			&inv.InvitedBy,
			&inv.ExpiresAt,
			&inv.AcceptedAt,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.Role = models.Role(role)
		out = append(out, &inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}

	return out, nil
}

// MarkAccepted sets accepted_at exactly once. The WHERE accepted_at IS NULL
// guard makes the update conditional: a second accept of the same token
// affects zero rows and returns ErrInvitationAccepted.
func (s *InvitationStore) MarkAccepted(ctx context.Context, invitationID uuid.UUID, at time.Time) error {
	query := `
		UPDATE invitations
		SET accepted_at = $2
		WHERE invitation_id = $1 AND accepted_at IS NULL
	`

	result, err := s.pool.Exec(ctx, query, invitationID, at)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish missing from already consumed.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM invitations WHERE invitation_id = $1)`,
			invitationID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check invitation: %w", err)
		}
		if !exists {
			return store.ErrInvitationNotFound
		}
		return store.ErrInvitationAccepted
	}

	log.Debug().
		Str("invitation_id", invitationID.String()).
		Msg("Marked invitation accepted")

	return nil
}

// Delete removes an invitation (revocation).
func (s *InvitationStore) Delete(ctx context.Context, invitationID uuid.UUID) error {
	query := `DELETE FROM invitations WHERE invitation_id = $1`

	result, err := s.pool.Exec(ctx, query, invitationID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrInvitationNotFound
	}

	return nil
}
