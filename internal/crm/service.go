// Package crm holds the portfolio tracking workflows: companies, their
// contacts, and interaction logging with commitment extraction.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	ErrNameRequired  = errors.New("name is required")
	ErrNotesRequired = errors.New("interaction notes are required")
	ErrInvalidStage  = errors.New("invalid company stage")
	ErrInvalidKind   = errors.New("invalid interaction kind")
)

// Stages a portfolio company moves through.
var validStages = map[string]bool{
	"applied":   true,
	"accepted":  true,
	"pre-seed":  true,
	"seed":      true,
	"series-a":  true,
	"exited":    true,
	"graduated": true,
}

var validKinds = map[string]bool{
	"meeting": true,
	"call":    true,
	"email":   true,
	"note":    true,
}

type Service struct {
	companies    store.CompanyStore
	contacts     store.ContactStore
	interactions store.InteractionStore
}

func NewService(stores *store.Stores) (*Service, error) {
	if stores == nil {
		return nil, fmt.Errorf("stores are required")
	}
	return &Service{
		companies:    stores.Companies,
		contacts:     stores.Contacts,
		interactions: stores.Interactions,
	}, nil
}

type CompanyInput struct {
	Name    string `json:"name"`
	Stage   string `json:"stage"`
	Sector  string `json:"sector"`
	Website string `json:"website"`
}

func (s *Service) CreateCompany(ctx context.Context, orgID uuid.UUID, input CompanyInput) (*models.Company, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	if input.Stage != "" && !validStages[input.Stage] {
		return nil, ErrInvalidStage
	}

	companyID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate company id: %w", err)
	}

	now := time.Now()
	company := &models.Company{
		CompanyID: companyID,
		OrgID:     orgID,
		Name:      input.Name,
		Stage:     input.Stage,
		Sector:    input.Sector,
		Website:   input.Website,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.companies.Create(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	return company, nil
}

func (s *Service) GetCompany(ctx context.Context, orgID, companyID uuid.UUID) (*models.Company, error) {
	return s.companies.Get(ctx, orgID, companyID)
}

func (s *Service) ListCompanies(ctx context.Context, orgID uuid.UUID) ([]*models.Company, error) {
	return s.companies.List(ctx, orgID)
}

func (s *Service) UpdateCompany(ctx context.Context, orgID, companyID uuid.UUID, input CompanyInput) (*models.Company, error) {
	company, err := s.companies.Get(ctx, orgID, companyID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		company.Name = name
	}
	if input.Stage != "" {
		if !validStages[input.Stage] {
			return nil, ErrInvalidStage
		}
		company.Stage = input.Stage
	}
	if input.Sector != "" {
		company.Sector = input.Sector
	}
	if input.Website != "" {
		company.Website = input.Website
	}
	company.UpdatedAt = time.Now()

	if err := s.companies.Update(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}

	return company, nil
}

func (s *Service) DeleteCompany(ctx context.Context, orgID, companyID uuid.UUID) error {
	return s.companies.Delete(ctx, orgID, companyID)
}

type ContactInput struct {
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Title     string    `json:"title"`
}

func (s *Service) CreateContact(ctx context.Context, orgID uuid.UUID, input ContactInput) (*models.Contact, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}

	// The company must exist in this organization.
	if _, err := s.companies.Get(ctx, orgID, input.CompanyID); err != nil {
		return nil, err
	}

	contactID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate contact id: %w", err)
	}

	now := time.Now()
	contact := &models.Contact{
		ContactID: contactID,
		OrgID:     orgID,
		CompanyID: input.CompanyID,
		Name:      input.Name,
		Email:     strings.TrimSpace(input.Email),
		Title:     input.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.contacts.Create(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	return contact, nil
}

func (s *Service) ListContacts(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Contact, error) {
	return s.contacts.ListByCompany(ctx, orgID, companyID)
}

func (s *Service) DeleteContact(ctx context.Context, orgID, contactID uuid.UUID) error {
	return s.contacts.Delete(ctx, orgID, contactID)
}

type InteractionInput struct {
	CompanyID     uuid.UUID  `json:"company_id"`
	Kind          string     `json:"kind"`
	Notes         string     `json:"notes"`
	OccurredAt    time.Time  `json:"occurred_at"`
	CommitmentDue *time.Time `json:"commitment_due"`
}

// LogInteraction records an interaction. When no commitment date is given
// explicitly, the notes are scanned for one.
func (s *Service) LogInteraction(ctx context.Context, orgID, authorID uuid.UUID, input InteractionInput) (*models.Interaction, error) {
	if strings.TrimSpace(input.Notes) == "" {
		return nil, ErrNotesRequired
	}
	if input.Kind == "" {
		input.Kind = "note"
	}
	if !validKinds[input.Kind] {
		return nil, ErrInvalidKind
	}

	if _, err := s.companies.Get(ctx, orgID, input.CompanyID); err != nil {
		return nil, err
	}

	interactionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate interaction id: %w", err)
	}

	now := time.Now()
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	commitmentDue := input.CommitmentDue
	if commitmentDue == nil {
		commitmentDue = ExtractCommitment(input.Notes, occurredAt)
		if commitmentDue != nil {
			log.Debug().
				Time("due", *commitmentDue).
				Msg("Commitment date extracted from notes")
		}
	}

	interaction := &models.Interaction{
		InteractionID: interactionID,
		OrgID:         orgID,
		CompanyID:     input.CompanyID,
		AuthorID:      authorID,
		Kind:          input.Kind,
		Notes:         input.Notes,
		OccurredAt:    occurredAt,
		CommitmentDue: commitmentDue,
		CreatedAt:     now,
	}

	if err := s.interactions.Create(ctx, interaction); err != nil {
		return nil, fmt.Errorf("failed to create interaction: %w", err)
	}

	return interaction, nil
}

func (s *Service) ListInteractions(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Interaction, error) {
	return s.interactions.ListByCompany(ctx, orgID, companyID)
}

// OpenCommitments returns interactions whose commitment falls due before
// the given time.
func (s *Service) OpenCommitments(ctx context.Context, orgID uuid.UUID, before time.Time) ([]*models.Interaction, error) {
	return s.interactions.ListOpenCommitments(ctx, orgID, before)
}
