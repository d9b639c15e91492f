package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugAlreadyExists    = errors.New("organization slug already exists")
	ErrMembershipNotFound   = errors.New("membership not found")
	// ErrMembershipAlreadyExists is returned when the (user, organization)
	// uniqueness constraint fires. Concurrent duplicate inserts resolve here:
	// exactly one caller succeeds, the other receives this error.
	ErrMembershipAlreadyExists = errors.New("membership already exists")
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionExpired          = errors.New("session expired")
	ErrInvitationNotFound      = errors.New("invitation not found")
	ErrInvitationAccepted      = errors.New("invitation already accepted")
	ErrCompanyNotFound         = errors.New("company not found")
	ErrContactNotFound         = errors.New("contact not found")
	ErrInteractionNotFound     = errors.New("interaction not found")
)

// UserStore persists the application-level user profiles mirrored from the
// identity provider.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// OrganizationStore persists tenants. Delete cascades all tenant-scoped
// rows (memberships, companies, contacts, interactions) via FK constraints.
type OrganizationStore interface {
	Create(ctx context.Context, org *models.Organization) error
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, orgID uuid.UUID) error
}

// MembershipStore is the membership and role store. It is only written by
// organization creation, invitation acceptance, and member removal.
type MembershipStore interface {
	Create(ctx context.Context, m *models.Membership) error
	Get(ctx context.Context, userID, orgID uuid.UUID) (*models.Membership, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error)
	UpdateRole(ctx context.Context, userID, orgID uuid.UUID, role models.Role) error
	Delete(ctx context.Context, userID, orgID uuid.UUID) error
}

// SessionStore persists server-side sessions. The session row's active org
// id is what the database row-level-security policies read; mutation goes
// through here only.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	// SetActiveOrg updates the active organization and the switch timestamp.
	SetActiveOrg(ctx context.Context, sessionID, orgID uuid.UUID) error
	UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteExpired(ctx context.Context) (int, error)
}

// InvitationStore persists invitations. MarkAccepted must be conditional on
// accepted_at still being null so a token is consumable at most once.
type InvitationStore interface {
	Create(ctx context.Context, inv *models.Invitation) error
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
	MarkAccepted(ctx context.Context, invitationID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, invitationID uuid.UUID) error
}

// CompanyStore persists tenant-scoped portfolio companies. Every call takes
// the resolved org id explicitly; implementations pin it to the row-level
// security setting for the statement.
type CompanyStore interface {
	Create(ctx context.Context, company *models.Company) error
	Get(ctx context.Context, orgID, companyID uuid.UUID) (*models.Company, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*models.Company, error)
	Update(ctx context.Context, company *models.Company) error
	Delete(ctx context.Context, orgID, companyID uuid.UUID) error
}

// ContactStore persists tenant-scoped contacts.
type ContactStore interface {
	Create(ctx context.Context, contact *models.Contact) error
	Get(ctx context.Context, orgID, contactID uuid.UUID) (*models.Contact, error)
	ListByCompany(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Contact, error)
	Delete(ctx context.Context, orgID, contactID uuid.UUID) error
}

// InteractionStore persists tenant-scoped interactions.
type InteractionStore interface {
	Create(ctx context.Context, interaction *models.Interaction) error
	Get(ctx context.Context, orgID, interactionID uuid.UUID) (*models.Interaction, error)
	ListByCompany(ctx context.Context, orgID, companyID uuid.UUID) ([]*models.Interaction, error)
	// ListOpenCommitments returns interactions with a commitment due before
	// the given time, newest first. Feeds the compliance report.
	ListOpenCommitments(ctx context.Context, orgID uuid.UUID, before time.Time) ([]*models.Interaction, error)
	Delete(ctx context.Context, orgID, interactionID uuid.UUID) error
}

// Stores bundles every store the server wires up, so command code can swap
// the whole backend (memory vs postgres) in one place.
type Stores struct {
	Users         UserStore
	Organizations OrganizationStore
	Memberships   MembershipStore
	Sessions      SessionStore
	Invitations   InvitationStore
	Companies     CompanyStore
	Contacts      ContactStore
	Interactions  InteractionStore
}
