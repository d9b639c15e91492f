package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
)

type membershipKey struct {
	userID uuid.UUID
	orgID  uuid.UUID
}

// MembershipStore implements store.MembershipStore using in-memory storage.
// The (user, organization) uniqueness invariant is enforced the same way the
// database unique constraint does it: the second insert loses.
type MembershipStore struct {
	mu sync.RWMutex

	memberships map[membershipKey]*models.Membership
}

// NewMembershipStore creates a new in-memory membership store.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{
		memberships: make(map[membershipKey]*models.Membership),
	}
}

// Create inserts a membership row. Returns ErrMembershipAlreadyExists when
// a row for the (user, organization) pair already exists.
func (s *MembershipStore) Create(ctx context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{userID: m.UserID, orgID: m.OrgID}
	if _, exists := s.memberships[key]; exists {
		return store.ErrMembershipAlreadyExists
	}

	clone := *m
	s.memberships[key] = &clone
	return nil
}

// Get retrieves the membership for a (user, organization) pair.
func (s *MembershipStore) Get(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.memberships[membershipKey{userID: userID, orgID: orgID}]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	clone := *m
	return &clone, nil
}

// ListByUser returns all memberships for a user ordered by creation time.
func (s *MembershipStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Membership
	for _, m := range s.memberships {
		if m.UserID == userID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sortMemberships(out)
	return out, nil
}

// ListByOrg returns all memberships for an organization ordered by creation time.
func (s *MembershipStore) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Membership
	for _, m := range s.memberships {
		if m.OrgID == orgID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sortMemberships(out)
	return out, nil
}

// UpdateRole changes the role of an existing membership.
func (s *MembershipStore) UpdateRole(ctx context.Context, userID, orgID uuid.UUID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.memberships[membershipKey{userID: userID, orgID: orgID}]
	if !exists {
		return store.ErrMembershipNotFound
	}

	m.Role = role
	return nil
}

// Delete removes a membership row.
func (s *MembershipStore) Delete(ctx context.Context, userID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey{userID: userID, orgID: orgID}
	if _, exists := s.memberships[key]; !exists {
		return store.ErrMembershipNotFound
	}

	delete(s.memberships, key)
	return nil
}

func (s *MembershipStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, m := range s.memberships {
		if m.OrgID == orgID {
			delete(s.memberships, key)
		}
	}
}

func sortMemberships(ms []*models.Membership) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].MembershipID.String() < ms[j].MembershipID.String()
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
