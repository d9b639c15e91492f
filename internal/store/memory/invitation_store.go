package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
)

// InvitationStore implements store.InvitationStore using in-memory storage.
type InvitationStore struct {
	mu sync.RWMutex

	invitations map[uuid.UUID]*models.Invitation // invitation_id -> Invitation
	byToken     map[string]uuid.UUID             // token -> invitation_id
}

// NewInvitationStore creates a new in-memory invitation store.
func NewInvitationStore() *InvitationStore {
	return &InvitationStore{
		invitations: make(map[uuid.UUID]*models.Invitation),
		byToken:     make(map[string]uuid.UUID),
	}
}

// Create persists a new invitation.
func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *inv
	s.invitations[inv.InvitationID] = &clone
	s.byToken[inv.Token] = inv.InvitationID
	return nil
}

// GetByToken retrieves an invitation by its opaque token.
func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byToken[token]
	if !exists {
		return nil, store.ErrInvitationNotFound
	}

	clone := *s.invitations[id]
	if clone.AcceptedAt != nil {
		at := *clone.AcceptedAt
		clone.AcceptedAt = &at
	}
	return &clone, nil
}

// ListByOrg returns all invitations for an organization, newest first.
func (s *InvitationStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Invitation
	for _, inv := range s.invitations {
		if inv.OrgID == orgID {
			clone := *inv
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkAccepted sets accepted_at exactly once. A second call for the same
// invitation returns ErrInvitationAccepted, mirroring the conditional UPDATE
// in the postgres store.
func (s *InvitationStore) MarkAccepted(ctx context.Context, invitationID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invitations[invitationID]
	if !exists {
		return store.ErrInvitationNotFound
	}
	if inv.AcceptedAt != nil {
		return store.ErrInvitationAccepted
	}

	accepted := at
	inv.AcceptedAt = &accepted
	return nil
}

// Delete removes an invitation (revocation).
func (s *InvitationStore) Delete(ctx context.Context, invitationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invitations[invitationID]
	if !exists {
		return store.ErrInvitationNotFound
	}

	delete(s.byToken, inv.Token)
	delete(s.invitations, invitationID)
	return nil
}

func (s *InvitationStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, inv := range s.invitations {
		if inv.OrgID == orgID {
			delete(s.byToken, inv.Token)
			delete(s.invitations, id)
		}
	}
}
