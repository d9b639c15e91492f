// Package tenant resolves which organization a session is acting in. The
// session record is authoritative; cookies only mirror the outcome so the
// frontend can render without a round trip.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoOrganization means the user has no memberships at all; callers
	// send them to onboarding rather than treating it as a failure.
	ErrNoOrganization = errors.New("user belongs to no organization")

	// ErrNotAMember means the requested organization exists but the user
	// holds no membership in it.
	ErrNotAMember = errors.New("user is not a member of this organization")
)

type Resolver struct {
	memberships store.MembershipStore
	sessions    store.SessionStore
}

func NewResolver(memberships store.MembershipStore, sessions store.SessionStore) *Resolver {
	return &Resolver{memberships: memberships, sessions: sessions}
}

// ResolveActiveOrg determines the organization a session is acting in and
// returns the membership granting access. If the session carries an active
// organization the membership is re-checked on every call; a revoked
// membership invalidates the stored choice instead of being trusted. With no
// stored choice the oldest membership wins and is persisted back onto the
// session so the next request skips the fallback.
func (r *Resolver) ResolveActiveOrg(ctx context.Context, session *models.Session) (*models.Membership, error) {
	if session.ActiveOrgID.Valid {
		m, err := r.memberships.Get(ctx, session.UserID, session.ActiveOrgID.UUID)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, store.ErrMembershipNotFound) {
			return nil, fmt.Errorf("failed to check membership: %w", err)
		}

		log.Debug().
			Str("user_id", session.UserID.String()).
			Str("org_id", session.ActiveOrgID.UUID.String()).
			Msg("Stored active organization no longer accessible, falling back")
	}

	memberships, err := r.memberships.ListByUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	if len(memberships) == 0 {
		return nil, ErrNoOrganization
	}

	// ListByUser orders by membership age, so the first entry is the
	// organization the user joined earliest.
	m := memberships[0]

	if err := r.sessions.SetActiveOrg(ctx, session.SessionID, m.OrgID); err != nil {
		// The fallback still resolved; persisting the choice is best effort.
		log.Warn().Err(err).
			Str("session_id", session.SessionID.String()).
			Msg("Failed to persist resolved active organization")
	} else {
		session.ActiveOrgID = uuid.NullUUID{UUID: m.OrgID, Valid: true}
	}

	return m, nil
}

// Switch changes the session's active organization after verifying the user
// actually holds a membership there. The membership check happens before any
// state is written.
func (r *Resolver) Switch(ctx context.Context, session *models.Session, orgID uuid.UUID) (*models.Membership, error) {
	m, err := r.memberships.Get(ctx, session.UserID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return nil, ErrNotAMember
		}
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	if err := r.sessions.SetActiveOrg(ctx, session.SessionID, orgID); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	session.ActiveOrgID = uuid.NullUUID{UUID: orgID, Valid: true}

	return m, nil
}
