package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a user's authenticated session. The session id is the only
// value stored in the browser cookie; everything else lives server-side.
// ActiveOrgID is the authoritative input to the database row-level-security
// policies; the active_organization_id cookie is only a read optimisation.
type Session struct {
	SessionID uuid.UUID // UUIDv7 - opaque cookie value
	UserID    uuid.UUID

	ActiveOrgID   uuid.NullUUID // null until the user has a membership
	OrgSwitchedAt time.Time     // last explicit switch

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
