package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
type OrganizationStore struct {
	mu sync.RWMutex

	orgs       map[uuid.UUID]*models.Organization // org_id -> Organization
	orgsBySlug map[string]uuid.UUID               // slug -> org_id

	// cascade targets, wired by the memory Stores constructor so that Delete
	// mirrors the postgres ON DELETE CASCADE behaviour
	memberships  *MembershipStore
	invitations  *InvitationStore
	companies    *CompanyStore
	contacts     *ContactStore
	interactions *InteractionStore
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		orgs:       make(map[uuid.UUID]*models.Organization),
		orgsBySlug: make(map[string]uuid.UUID),
	}
}

// Cascade registers the tenant-scoped stores whose rows are removed when an
// organization is deleted.
func (s *OrganizationStore) Cascade(m *MembershipStore, inv *InvitationStore, c *CompanyStore, ct *ContactStore, i *InteractionStore) {
	s.memberships = m
	s.invitations = inv
	s.companies = c
	s.contacts = ct
	s.interactions = i
}

// Create creates a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orgsBySlug[org.Slug]; exists {
		return store.ErrSlugAlreadyExists
	}

	clone := *org
	s.orgs[org.OrgID] = &clone
	s.orgsBySlug[org.Slug] = org.OrgID
	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.orgs[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetBySlug retrieves an organization by its slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.orgsBySlug[slug]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *s.orgs[orgID]
	return &clone, nil
}

// Update replaces a stored organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orgs[org.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if existing.Slug != org.Slug {
		if _, taken := s.orgsBySlug[org.Slug]; taken {
			return store.ErrSlugAlreadyExists
		}
		delete(s.orgsBySlug, existing.Slug)
		s.orgsBySlug[org.Slug] = org.OrgID
	}

	clone := *org
	clone.UpdatedAt = time.Now()
	s.orgs[org.OrgID] = &clone
	return nil
}

// Delete deletes an organization and cascades every tenant-scoped record,
// matching the FK ON DELETE CASCADE behaviour of the postgres store.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	org, exists := s.orgs[orgID]
	if !exists {
		s.mu.Unlock()
		return store.ErrOrganizationNotFound
	}
	delete(s.orgsBySlug, org.Slug)
	delete(s.orgs, orgID)
	s.mu.Unlock()

	if s.memberships != nil {
		s.memberships.deleteByOrg(orgID)
	}
	if s.invitations != nil {
		s.invitations.deleteByOrg(orgID)
	}
	if s.companies != nil {
		s.companies.deleteByOrg(orgID)
	}
	if s.contacts != nil {
		s.contacts.deleteByOrg(orgID)
	}
	if s.interactions != nil {
		s.interactions.deleteByOrg(orgID)
	}
	return nil
}
