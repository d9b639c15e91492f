package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invitation is a single-use, time-boxed credential granting a specific
// email the right to join a specific organization at a specific role.
// There is no stored state column: "expired" is derived from ExpiresAt and
// "accepted" from AcceptedAt, which transitions null -> timestamp exactly
// once.
type Invitation struct {
	InvitationID uuid.UUID // UUIDv7
	Token        string    // base58, from crypto/rand; unique
	OrgID        uuid.UUID
	Email        string
	Role         Role
	InvitedBy    uuid.UUID

	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// IsExpired reports whether the invitation is past its expiry.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// IsAccepted reports whether the invitation has already been consumed.
func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

// EmailMatches compares the accepting principal's email with the invited
// email, case-insensitively.
func (i *Invitation) EmailMatches(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(i.Email))
}
