// Package invite implements the invitation workflow: issuing tokens, the
// acceptance saga spanning the identity provider and the application
// database, and revocation.
package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/identity"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/telemetry"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidToken  = errors.New("invitation token is invalid")
	ErrAlreadyUsed   = errors.New("invitation has already been accepted")
	ErrExpired       = errors.New("invitation has expired")
	ErrEmailMismatch = errors.New("invitation was issued for a different email address")
	ErrInvalidRole   = errors.New("invalid role for invitation")
)

// TTL is how long an invitation stays acceptable.
const TTL = 7 * 24 * time.Hour

const tokenBytes = 24

type Service struct {
	invitations   store.InvitationStore
	memberships   store.MembershipStore
	users         store.UserStore
	organizations store.OrganizationStore
	provider      identity.Provider
	mailer        Mailer
	baseURL       string
}

func NewService(stores *store.Stores, provider identity.Provider, mailer Mailer, baseURL string) (*Service, error) {
	if stores == nil || provider == nil || mailer == nil {
		return nil, fmt.Errorf("stores, identity provider, and mailer are required")
	}
	return &Service{
		invitations:   stores.Invitations,
		memberships:   stores.Memberships,
		users:         stores.Users,
		organizations: stores.Organizations,
		provider:      provider,
		mailer:        mailer,
		baseURL:       strings.TrimRight(baseURL, "/"),
	}, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base58.Encode(buf), nil
}

// Issue creates an invitation and emails the acceptance link. A failed email
// send does not void the invitation; the link can be resent or copied from
// the members page.
func (s *Service) Issue(ctx context.Context, orgID uuid.UUID, email string, role models.Role, invitedBy uuid.UUID) (*models.Invitation, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email address is required")
	}

	org, err := s.organizations.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	invitationID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation id: %w", err)
	}

	now := time.Now()
	invitation := &models.Invitation{
		InvitationID: invitationID,
		Token:        token,
		OrgID:        orgID,
		Email:        email,
		Role:         role,
		InvitedBy:    invitedBy,
		ExpiresAt:    now.Add(TTL),
		CreatedAt:    now,
	}

	if err := s.invitations.Create(ctx, invitation); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	telemetry.GetMetrics().InvitationsIssuedTotal.Add(ctx, 1)

	acceptURL := s.baseURL + "/invite/" + token
	if err := s.mailer.SendInvitation(ctx, email, org.Name, acceptURL); err != nil {
		log.Warn().Err(err).
			Str("invitation_id", invitationID.String()).
			Msg("Failed to send invitation email")
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("role", string(role)).
		Msg("Invitation issued")

	return invitation, nil
}

// Validate checks a token without consuming it, so the acceptance page can
// show what is being joined before asking for a password. Rejections are
// reported in a fixed order: unknown token, already used, expired.
func (s *Service) Validate(ctx context.Context, token string) (*models.Invitation, *models.Organization, error) {
	invitation, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrInvitationNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to look up invitation: %w", err)
	}

	if invitation.IsAccepted() {
		return nil, nil, ErrAlreadyUsed
	}

	if invitation.IsExpired() {
		return nil, nil, ErrExpired
	}

	org, err := s.organizations.Get(ctx, invitation.OrgID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load organization: %w", err)
	}

	return invitation, org, nil
}

// Accept consumes an invitation for a brand-new user: the account is created
// at the identity provider pre-confirmed, mirrored locally, and granted the
// invited membership. If the membership cannot be written the provider
// account is deleted again so a retry starts clean.
//
// When the address already has an account, the submitted password is checked
// against the provider before the membership is granted. The invitation token
// proves ownership of the inbox, not of the account behind it.
func (s *Service) Accept(ctx context.Context, token, email, password, firstName, lastName string) (*models.Membership, error) {
	invitation, _, err := s.Validate(ctx, token)
	if err != nil {
		telemetry.GetMetrics().InvitationsRejectedTotal.Add(ctx, 1)
		return nil, err
	}

	if !invitation.EmailMatches(email) {
		telemetry.GetMetrics().InvitationsRejectedTotal.Add(ctx, 1)
		return nil, ErrEmailMismatch
	}

	providerUser, err := s.provider.CreateUserPreConfirmed(ctx, invitation.Email, password)
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			return s.acceptExisting(ctx, invitation, password)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	now := time.Now()
	user := &models.User{
		UserID:           providerUser.ID,
		Email:            providerUser.Email,
		FirstName:        firstName,
		LastName:         lastName,
		EmailConfirmedAt: providerUser.EmailConfirmedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.users.Create(ctx, user); err != nil && !errors.Is(err, store.ErrUserAlreadyExists) {
		s.compensate(ctx, providerUser.ID)
		return nil, fmt.Errorf("failed to mirror user: %w", err)
	}

	membership, err := s.grantMembership(ctx, providerUser.ID, invitation)
	if err != nil {
		s.compensate(ctx, providerUser.ID)
		if derr := s.users.Delete(ctx, providerUser.ID); derr != nil {
			log.Warn().Err(derr).Msg("Failed to remove mirrored user during compensation")
		}
		return nil, err
	}

	return membership, nil
}

// AcceptAsUser consumes an invitation on behalf of an already signed-in
// user, adding them to the organization without touching the identity
// provider.
func (s *Service) AcceptAsUser(ctx context.Context, token string, user *models.User) (*models.Membership, error) {
	invitation, _, err := s.Validate(ctx, token)
	if err != nil {
		telemetry.GetMetrics().InvitationsRejectedTotal.Add(ctx, 1)
		return nil, err
	}

	if !invitation.EmailMatches(user.Email) {
		telemetry.GetMetrics().InvitationsRejectedTotal.Add(ctx, 1)
		return nil, ErrEmailMismatch
	}

	return s.grantMembership(ctx, user.UserID, invitation)
}

func (s *Service) acceptExisting(ctx context.Context, invitation *models.Invitation, password string) (*models.Membership, error) {
	// The submitted password must prove control of the existing account.
	// Otherwise anyone holding the emailed link could take over memberships
	// on behalf of the address's real owner.
	if _, err := s.provider.SignIn(ctx, invitation.Email, password); err != nil {
		telemetry.GetMetrics().InvitationsRejectedTotal.Add(ctx, 1)
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrEmailNotConfirmed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to verify existing account: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, invitation.Email)
	if err != nil {
		return nil, fmt.Errorf("account exists at provider but has no local profile: %w", err)
	}
	return s.grantMembership(ctx, user.UserID, invitation)
}

func (s *Service) grantMembership(ctx context.Context, userID uuid.UUID, invitation *models.Invitation) (*models.Membership, error) {
	membershipID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate membership id: %w", err)
	}

	membership := &models.Membership{
		MembershipID: membershipID,
		UserID:       userID,
		OrgID:        invitation.OrgID,
		Role:         invitation.Role,
		CreatedAt:    time.Now(),
	}

	if err := s.memberships.Create(ctx, membership); err != nil {
		if errors.Is(err, store.ErrMembershipAlreadyExists) {
			// Already a member; still consume the invitation.
			if merr := s.invitations.MarkAccepted(ctx, invitation.InvitationID, time.Now()); merr != nil && !errors.Is(merr, store.ErrInvitationAccepted) {
				log.Warn().Err(merr).Msg("Failed to mark invitation accepted for existing member")
			}
			return s.memberships.Get(ctx, userID, invitation.OrgID)
		}
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := s.invitations.MarkAccepted(ctx, invitation.InvitationID, time.Now()); err != nil {
		if errors.Is(err, store.ErrInvitationAccepted) {
			// Someone raced us to the invitation; roll the membership back.
			if derr := s.memberships.Delete(ctx, userID, invitation.OrgID); derr != nil {
				log.Warn().Err(derr).Msg("Failed to roll back membership after acceptance race")
			}
			return nil, ErrAlreadyUsed
		}
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	telemetry.GetMetrics().InvitationsAcceptedTotal.Add(ctx, 1)
	telemetry.GetMetrics().MembershipsCreated.Add(ctx, 1)

	log.Info().
		Str("org_id", invitation.OrgID.String()).
		Str("role", string(invitation.Role)).
		Msg("Invitation accepted")

	return membership, nil
}

// compensate undoes the provider-side account creation after a local
// failure. Best effort: a leaked provider account is logged, not fatal.
func (s *Service) compensate(ctx context.Context, userID uuid.UUID) {
	if err := s.provider.DeleteUser(ctx, userID); err != nil {
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Msg("Failed to delete provider account during compensation")
	}
}

// Revoke deletes a pending invitation.
func (s *Service) Revoke(ctx context.Context, invitationID uuid.UUID) error {
	if err := s.invitations.Delete(ctx, invitationID); err != nil {
		if errors.Is(err, store.ErrInvitationNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return nil
}

// ListPending returns the organization's open invitations.
func (s *Service) ListPending(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	invitations, err := s.invitations.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	pending := make([]*models.Invitation, 0, len(invitations))
	for _, inv := range invitations {
		if !inv.IsAccepted() && !inv.IsExpired() {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}
