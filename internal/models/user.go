package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the application-level profile mirrored from the identity provider.
// The provider owns credentials and email confirmation; this record only
// carries what the CRM needs to render and scope data.
type User struct {
	UserID    uuid.UUID // UUIDv7, same id the identity provider issued
	Email     string
	FirstName string
	LastName  string
	AvatarURL string

	// DefaultOrgID is a legacy single-tenant compatibility hint carried over
	// from before organizations existed. It seeds the first session record
	// when set; memberships remain the source of truth.
	DefaultOrgID uuid.NullUUID

	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
