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

// CompanyStore implements store.CompanyStore using in-memory storage.
// The org id is checked on every read and write, mirroring what row-level
// security enforces in the postgres store.
type CompanyStore struct {
	mu        sync.RWMutex
	companies map[uuid.UUID]*models.Company
}

// NewCompanyStore creates a new in-memory company store.
func NewCompanyStore() *CompanyStore {
	return &CompanyStore{companies: make(map[uuid.UUID]*models.Company)}
}

// Create persists a new company.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *company
	s.companies[company.CompanyID] = &clone
	return nil
}

// Get retrieves a company scoped to the organization.
func (s *CompanyStore) Get(ctx context.Context, orgID, companyID uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[companyID]
	if !exists || company.OrgID != orgID {
		return nil, store.ErrCompanyNotFound
	}

	clone := *company
	return &clone, nil
}

// List returns all companies for an organization, by name.
func (s *CompanyStore) List(ctx context.Context, orgID uuid.UUID) ([]*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Company
	for _, c := range s.companies {
		if c.OrgID == orgID {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update replaces a stored company.
func (s *CompanyStore) Update(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.companies[company.CompanyID]
	if !exists || existing.OrgID != company.OrgID {
		return store.ErrCompanyNotFound
	}

	clone := *company
	clone.UpdatedAt = time.Now()
	s.companies[company.CompanyID] = &clone
	return nil
}

// Delete removes a company scoped to the organization.
func (s *CompanyStore) Delete(ctx context.Context, orgID, companyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	company, exists := s.companies[companyID]
	if !exists || company.OrgID != orgID {
		return store.ErrCompanyNotFound
	}

	delete(s.companies, companyID)
	return nil
}

func (s *CompanyStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.companies {
		if c.OrgID == orgID {
			delete(s.companies, id)
		}
	}
}

// ContactStore implements store.ContactStore using in-memory storage.
type ContactStore struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]*models.Contact
}

// NewContactStore creates a new in-memory contact store.
func NewContactStore() *ContactStore {
	return &ContactStore{contacts: make(map[uuid.UUID]*models.Contact)}
}

// Create persists a new contact.
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *contact
	s.contacts[contact.ContactID] = &clone
	return nil
}

// Get retrieves a contact scoped to the organization.
func (s *ContactStore) Get(ctx context.Context, orgID, contactID uuid.UUID) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, exists := s.contacts[contactID]
	if !exists || contact.OrgID != orgID {
		return nil, store.ErrContactNotFound
	}

	clone := *contact
	return &clone, nil
}

// ListByCompany returns all contacts for a company, by name.
func (s *ContactStore) ListByCompany(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Contact
	for _, c := range s.contacts {
		if c.OrgID == orgID && c.CompanyID == companyID {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a contact scoped to the organization.
func (s *ContactStore) Delete(ctx context.Context, orgID, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, exists := s.contacts[contactID]
	if !exists || contact.OrgID != orgID {
		return store.ErrContactNotFound
	}

	delete(s.contacts, contactID)
	return nil
}

func (s *ContactStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.contacts {
		if c.OrgID == orgID {
			delete(s.contacts, id)
		}
	}
}

// InteractionStore implements store.InteractionStore using in-memory storage.
type InteractionStore struct {
	mu           sync.RWMutex
	interactions map[uuid.UUID]*models.Interaction
}

// NewInteractionStore creates a new in-memory interaction store.
func NewInteractionStore() *InteractionStore {
	return &InteractionStore{interactions: make(map[uuid.UUID]*models.Interaction)}
}

// Create persists a new interaction.
func (s *InteractionStore) Create(ctx context.Context, interaction *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *interaction
	s.interactions[interaction.InteractionID] = &clone
	return nil
}

// Get retrieves an interaction scoped to the organization.
func (s *InteractionStore) Get(ctx context.Context, orgID, interactionID uuid.UUID) (*models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	interaction, exists := s.interactions[interactionID]
	if !exists || interaction.OrgID != orgID {
		return nil, store.ErrInteractionNotFound
	}

	clone := *interaction
	return &clone, nil
}

// ListByCompany returns interactions for a company, newest first.
func (s *InteractionStore) ListByCompany(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Interaction
	for _, i := range s.interactions {
		if i.OrgID == orgID && i.CompanyID == companyID {
			clone := *i
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

// ListOpenCommitments returns interactions whose commitment is due before
// the given time, newest first.
func (s *InteractionStore) ListOpenCommitments(ctx context.Context, orgID uuid.UUID, before time.Time) ([]*models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Interaction
	for _, i := range s.interactions {
		if i.OrgID == orgID && i.CommitmentDue != nil && i.CommitmentDue.Before(before) {
			clone := *i
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

// Delete removes an interaction scoped to the organization.
func (s *InteractionStore) Delete(ctx context.Context, orgID, interactionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	interaction, exists := s.interactions[interactionID]
	if !exists || interaction.OrgID != orgID {
		return store.ErrInteractionNotFound
	}

	delete(s.interactions, interactionID)
	return nil
}

func (s *InteractionStore) deleteByOrg(orgID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, i := range s.interactions {
		if i.OrgID == orgID {
			delete(s.interactions, id)
		}
	}
}
