package memory

import "github.com/impacthq/impactos/internal/store"

// NewStores wires up a full in-memory backend with organization delete
// cascading into the tenant-scoped stores.
func NewStores() *store.Stores {
	orgs := NewOrganizationStore()
	memberships := NewMembershipStore()
	invitations := NewInvitationStore()
	companies := NewCompanyStore()
	contacts := NewContactStore()
	interactions := NewInteractionStore()

	orgs.Cascade(memberships, invitations, companies, contacts, interactions)

	return &store.Stores{
		Users:         NewUserStore(),
		Organizations: orgs,
		Memberships:   memberships,
		Sessions:      NewSessionStore(),
		Invitations:   invitations,
		Companies:     companies,
		Contacts:      contacts,
		Interactions:  interactions,
	}
}
