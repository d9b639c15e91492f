// Package org implements the organization lifecycle: creation with an owner
// membership, renaming, and the guarded deletion flow.
package org

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/telemetry"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrNameTooShort         = errors.New("organization name is too short")
	ErrNotOwner             = errors.New("only an owner can perform this action")
	ErrConfirmationMismatch = errors.New("deletion confirmation text does not match")
	ErrLastOwner            = errors.New("an organization must keep at least one owner")
	ErrInvalidRole          = errors.New("invalid role")
)

// DeleteConfirmation is the literal a caller must type to delete an
// organization.
const DeleteConfirmation = "DELETE"

const minNameLength = 2

// slugAttempts bounds how many suffixed slugs are tried before giving up.
const slugAttempts = 20

//go:embed defaults.yaml
var defaultSettingsYAML []byte

// DefaultSettings returns the settings a new organization starts with.
func DefaultSettings() (models.OrgSettings, error) {
	var settings models.OrgSettings
	if err := yaml.Unmarshal(defaultSettingsYAML, &settings); err != nil {
		return models.OrgSettings{}, fmt.Errorf("failed to parse default settings: %w", err)
	}
	return settings, nil
}

type Service struct {
	organizations store.OrganizationStore
	memberships   store.MembershipStore
	users         store.UserStore
}

func NewService(stores *store.Stores) (*Service, error) {
	if stores == nil {
		return nil, fmt.Errorf("stores are required")
	}
	return &Service{
		organizations: stores.Organizations,
		memberships:   stores.Memberships,
		users:         stores.Users,
	}, nil
}

// Slugify derives a URL slug from an organization name: lowercase, runs of
// non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// Create makes a new organization with default settings and grants the
// creating user an owner membership. Slug collisions get a numeric suffix.
// If the owner membership cannot be written the organization is removed
// again; an ownerless tenant must not exist.
func (s *Service) Create(ctx context.Context, name string, userID uuid.UUID) (*models.Organization, *models.Membership, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < minNameLength {
		return nil, nil, ErrNameTooShort
	}

	settings, err := DefaultSettings()
	if err != nil {
		return nil, nil, err
	}

	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate organization id: %w", err)
	}

	base := Slugify(name)
	if base == "" {
		return nil, nil, ErrNameTooShort
	}

	now := time.Now()
	org := &models.Organization{
		OrgID:     orgID,
		Name:      name,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created := false
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		org.Slug = base
		if attempt > 1 {
			org.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}

		err := s.organizations.Create(ctx, org)
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, store.ErrSlugAlreadyExists) {
			return nil, nil, fmt.Errorf("failed to create organization: %w", err)
		}
	}
	if !created {
		return nil, nil, fmt.Errorf("could not find a free slug for %q", name)
	}

	membershipID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate membership id: %w", err)
	}

	membership := &models.Membership{
		MembershipID: membershipID,
		UserID:       userID,
		OrgID:        orgID,
		Role:         models.RoleOwner,
		CreatedAt:    now,
	}

	if err := s.memberships.Create(ctx, membership); err != nil {
		if derr := s.organizations.Delete(ctx, orgID); derr != nil {
			log.Error().Err(derr).
				Str("org_id", orgID.String()).
				Msg("Failed to remove organization after owner membership failure")
		}
		return nil, nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	telemetry.GetMetrics().OrgsCreatedTotal.Add(ctx, 1)
	telemetry.GetMetrics().MembershipsCreated.Add(ctx, 1)

	log.Info().
		Str("org_id", orgID.String()).
		Str("slug", org.Slug).
		Msg("Organization created")

	return org, membership, nil
}

// Delete removes an organization and, through the database's cascading
// constraints, everything scoped to it. The caller must hold an owner
// membership and type the confirmation literal exactly; both are checked
// before anything is touched.
func (s *Service) Delete(ctx context.Context, orgID, userID uuid.UUID, confirmation string) error {
	if confirmation != DeleteConfirmation {
		return ErrConfirmationMismatch
	}

	m, err := s.memberships.Get(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return ErrNotOwner
		}
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if m.Role != models.RoleOwner {
		return ErrNotOwner
	}

	if err := s.organizations.Delete(ctx, orgID); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	telemetry.GetMetrics().OrgsDeletedTotal.Add(ctx, 1)

	log.Info().
		Str("org_id", orgID.String()).
		Msg("Organization deleted")

	return nil
}

// Rename changes the display name. The slug is stable; links keep working.
func (s *Service) Rename(ctx context.Context, orgID, userID uuid.UUID, name string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < minNameLength {
		return nil, ErrNameTooShort
	}

	m, err := s.memberships.Get(ctx, userID, orgID)
	if err != nil || m.Role != models.RoleOwner {
		return nil, ErrNotOwner
	}

	org, err := s.organizations.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	org.Name = name
	org.UpdatedAt = time.Now()

	if err := s.organizations.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	return org, nil
}

// UserOrganization pairs an organization with the caller's role in it.
type UserOrganization struct {
	Organization *models.Organization `json:"organization"`
	Role         models.Role          `json:"role"`
}

// ListForUser returns every organization the user belongs to, oldest
// membership first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]UserOrganization, error) {
	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	out := make([]UserOrganization, 0, len(memberships))
	for _, m := range memberships {
		org, err := s.organizations.Get(ctx, m.OrgID)
		if err != nil {
			if errors.Is(err, store.ErrOrganizationNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load organization: %w", err)
		}
		out = append(out, UserOrganization{Organization: org, Role: m.Role})
	}
	return out, nil
}

// Members lists the organization's memberships joined with user profiles.
type Member struct {
	User *models.User `json:"user"`
	Role models.Role  `json:"role"`
}

func (s *Service) Members(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	memberships, err := s.memberships.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	out := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		user, err := s.users.Get(ctx, m.UserID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load member profile: %w", err)
		}
		out = append(out, Member{User: user, Role: m.Role})
	}
	return out, nil
}

// UpdateMemberRole changes a member's role. Demoting the last remaining
// owner is refused so the organization never ends up ownerless.
func (s *Service) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	current, err := s.memberships.Get(ctx, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}

	if current.Role == models.RoleOwner && role != models.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, orgID, userID); err != nil {
			return err
		}
	}

	if err := s.memberships.UpdateRole(ctx, userID, orgID, role); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership, refusing to remove the last owner.
func (s *Service) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	current, err := s.memberships.Get(ctx, userID, orgID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}

	if current.Role == models.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, orgID, userID); err != nil {
			return err
		}
	}

	if err := s.memberships.Delete(ctx, userID, orgID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func (s *Service) ensureAnotherOwner(ctx context.Context, orgID, excludeUserID uuid.UUID) error {
	memberships, err := s.memberships.ListByOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list memberships: %w", err)
	}
	for _, m := range memberships {
		if m.Role == models.RoleOwner && m.UserID != excludeUserID {
			return nil
		}
	}
	return ErrLastOwner
}
