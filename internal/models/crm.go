package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is a portfolio company tracked by an accelerator. Tenant-scoped:
// the org id column carries the row-level-security policy.
type Company struct {
	CompanyID uuid.UUID // UUIDv7
	OrgID     uuid.UUID
	Name      string
	Stage     string // e.g. "pre-seed", "seed", "series-a"
	Sector    string
	Website   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contact is a person attached to a portfolio company.
type Contact struct {
	ContactID uuid.UUID // UUIDv7
	OrgID     uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Email     string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interaction is a logged touchpoint (meeting, call, email) with a company.
// CommitmentDue is extracted from the notes by the commitment heuristics and
// feeds the compliance report's outstanding-commitments section.
type Interaction struct {
	InteractionID uuid.UUID // UUIDv7
	OrgID         uuid.UUID
	CompanyID     uuid.UUID
	AuthorID      uuid.UUID
	Kind          string // "meeting", "call", "email", "note"
	Notes         string
	OccurredAt    time.Time
	CommitmentDue *time.Time
	CreatedAt     time.Time
}
