package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant. Every domain record (company, contact,
// interaction) hangs off exactly one organization via its org id, and the
// database cascades tenant data away when the organization row is deleted.
type Organization struct {
	OrgID     uuid.UUID // UUIDv7
	Name      string
	Slug      string // unique, generated from the name
	Settings  OrgSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrgSettings is the per-tenant configuration blob provisioned at creation
// time. Stored as JSONB; defaults come from the embedded defaults file.
type OrgSettings struct {
	FeatureFlags map[string]bool   `json:"feature_flags" yaml:"feature_flags"`
	AIFeatures   map[string]string `json:"ai_features" yaml:"ai_features"`
}
