package postgres

import (
	"github.com/impacthq/impactos/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStores wires up a full PostgreSQL backend sharing one pool.
func NewStores(pool *pgxpool.Pool) *store.Stores {
	return &store.Stores{
		Users:         NewUserStore(pool),
		Organizations: NewOrganizationStore(pool),
		Memberships:   NewMembershipStore(pool),
		Sessions:      NewSessionStore(pool),
		Invitations:   NewInvitationStore(pool),
		Companies:     NewCompanyStore(pool),
		Contacts:      NewContactStore(pool),
		Interactions:  NewInteractionStore(pool),
	}
}
