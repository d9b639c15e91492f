package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the membership role within an organization. Comparison uses one
// fixed total order owner > editor > viewer; there are no per-call-site
// boolean checks.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// roleLevels defines the total order used by AtLeast.
var roleLevels = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleOwner:  3,
}

// ParseRole normalises a role string. "admin" is accepted as a legacy
// spelling of owner; anything else unknown is rejected.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleEditor, RoleViewer:
		return Role(s), nil
	}
	if s == "admin" {
		return RoleOwner, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether the role is one of the fixed enumeration.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r grants at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return roleLevels[r] >= roleLevels[min]
}

// Membership links a user to an organization at a role. Exactly one row may
// exist per (user, organization) pair; the unique constraint in the store is
// what resolves concurrent duplicate inserts.
type Membership struct {
	MembershipID uuid.UUID // UUIDv7
	UserID       uuid.UUID
	OrgID        uuid.UUID
	Role         Role
	CreatedAt    time.Time
}
