package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/auth"
	"github.com/impacthq/impactos/internal/identity"
	"github.com/impacthq/impactos/internal/invite"
	"github.com/impacthq/impactos/internal/login"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/org"
	"github.com/impacthq/impactos/internal/telemetry"
	"github.com/impacthq/impactos/internal/tenant"
	"github.com/rs/zerolog/log"
)

type createOrgRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var req createOrgRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, membership, err := h.orgs.Create(r.Context(), req.Name, ident.User.UserID)
	if err != nil {
		if errors.Is(err, org.ErrNameTooShort) {
			respondError(w, http.StatusBadRequest, "name_too_short", "organization name must be at least 2 characters")
			return
		}
		log.Error().Err(err).Msg("Failed to create organization")
		respondError(w, http.StatusInternalServerError, "internal", "could not create the organization")
		return
	}

	// Make the new organization active right away.
	if _, err := h.resolver.Switch(r.Context(), ident.Session, created.OrgID); err != nil {
		log.Warn().Err(err).Msg("Failed to activate new organization")
	} else {
		tenant.SetActiveOrgCookie(w, created.OrgID)
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"organization": created,
		"role":         membership.Role,
	})
}

func (h *Handlers) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	orgs, err := h.orgs.ListForUser(r.Context(), ident.User.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list organizations")
		respondError(w, http.StatusInternalServerError, "internal", "could not list organizations")
		return
	}

	respondJSON(w, http.StatusOK, orgs)
}

func (h *Handlers) handleSwitchOrg(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	orgID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid organization id")
		return
	}

	membership, err := h.resolver.Switch(r.Context(), ident.Session, orgID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotAMember) {
			respondError(w, http.StatusForbidden, "not_a_member", "you are not a member of this organization")
			return
		}
		log.Error().Err(err).Msg("Failed to switch organization")
		respondError(w, http.StatusInternalServerError, "internal", "could not switch organization")
		return
	}

	tenant.SetActiveOrgCookie(w, orgID)
	telemetry.GetMetrics().OrgSwitchesTotal.Add(r.Context(), 1)

	// Browser form posts land back on the dashboard; API clients get JSON.
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"org_id": orgID,
		"role":   membership.Role,
	})
}

type renameOrgRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) handleRenameOrg(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var req renameOrgRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	renamed, err := h.orgs.Rename(r.Context(), ident.Membership.OrgID, ident.User.UserID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, org.ErrNameTooShort):
			respondError(w, http.StatusBadRequest, "name_too_short", "organization name must be at least 2 characters")
		case errors.Is(err, org.ErrNotOwner):
			respondError(w, http.StatusForbidden, "not_owner", "only an owner can rename the organization")
		default:
			log.Error().Err(err).Msg("Failed to rename organization")
			respondError(w, http.StatusInternalServerError, "internal", "could not rename the organization")
		}
		return
	}

	respondJSON(w, http.StatusOK, renamed)
}

type deleteOrgRequest struct {
	Confirmation string `json:"confirmation"`
}

func (h *Handlers) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var req deleteOrgRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.orgs.Delete(r.Context(), ident.Membership.OrgID, ident.User.UserID, req.Confirmation)
	if err != nil {
		switch {
		case errors.Is(err, org.ErrConfirmationMismatch):
			respondError(w, http.StatusBadRequest, "confirmation_mismatch", "type DELETE to confirm")
		case errors.Is(err, org.ErrNotOwner):
			respondError(w, http.StatusForbidden, "not_owner", "only an owner can delete the organization")
		default:
			log.Error().Err(err).Msg("Failed to delete organization")
			respondError(w, http.StatusInternalServerError, "internal", "could not delete the organization")
		}
		return
	}

	tenant.ClearActiveOrgCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) handleListMembers(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	members, err := h.orgs.Members(r.Context(), ident.Membership.OrgID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list members")
		respondError(w, http.StatusInternalServerError, "internal", "could not list members")
		return
	}

	respondJSON(w, http.StatusOK, members)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handlers) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_role", "role must be owner, editor, or viewer")
		return
	}

	if err := h.orgs.UpdateMemberRole(r.Context(), ident.Membership.OrgID, userID, role); err != nil {
		if errors.Is(err, org.ErrLastOwner) {
			respondError(w, http.StatusConflict, "last_owner", "an organization must keep at least one owner")
			return
		}
		log.Error().Err(err).Msg("Failed to update member role")
		respondError(w, http.StatusInternalServerError, "internal", "could not update the role")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "role": role})
}

func (h *Handlers) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	userID, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}

	if err := h.orgs.RemoveMember(r.Context(), ident.Membership.OrgID, userID); err != nil {
		if errors.Is(err, org.ErrLastOwner) {
			respondError(w, http.StatusConflict, "last_owner", "an organization must keep at least one owner")
			return
		}
		log.Error().Err(err).Msg("Failed to remove member")
		respondError(w, http.StatusInternalServerError, "internal", "could not remove the member")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type issueInviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// invitationView is what the members page sees. The token itself never
// appears in an API response; it only travels in the invitation email.
type invitationView struct {
	InvitationID uuid.UUID   `json:"invitation_id"`
	Email        string      `json:"email"`
	Role         models.Role `json:"role"`
	InvitedBy    uuid.UUID   `json:"invited_by"`
	ExpiresAt    time.Time   `json:"expires_at"`
	CreatedAt    time.Time   `json:"created_at"`
}

func toInvitationView(inv *models.Invitation) invitationView {
	return invitationView{
		InvitationID: inv.InvitationID,
		Email:        inv.Email,
		Role:         inv.Role,
		InvitedBy:    inv.InvitedBy,
		ExpiresAt:    inv.ExpiresAt,
		CreatedAt:    inv.CreatedAt,
	}
}

func (h *Handlers) handleIssueInvitation(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var req issueInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_role", "role must be owner, editor, or viewer")
		return
	}

	invitation, err := h.invites.Issue(r.Context(), ident.Membership.OrgID, req.Email, role, ident.User.UserID)
	if err != nil {
		if errors.Is(err, invite.ErrInvalidRole) {
			respondError(w, http.StatusBadRequest, "invalid_role", "role must be owner, editor, or viewer")
			return
		}
		log.Error().Err(err).Msg("Failed to issue invitation")
		respondError(w, http.StatusBadRequest, "invalid_invitation", "could not create the invitation")
		return
	}

	respondJSON(w, http.StatusCreated, toInvitationView(invitation))
}

func (h *Handlers) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	pending, err := h.invites.ListPending(r.Context(), ident.Membership.OrgID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list invitations")
		respondError(w, http.StatusInternalServerError, "internal", "could not list invitations")
		return
	}

	views := make([]invitationView, 0, len(pending))
	for _, inv := range pending {
		views = append(views, toInvitationView(inv))
	}

	respondJSON(w, http.StatusOK, views)
}

func (h *Handlers) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid invitation id")
		return
	}

	if err := h.invites.Revoke(r.Context(), invitationID); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "invitation not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleValidateInvitation is public: the acceptance page shows what is
// being joined before asking for credentials.
func (h *Handlers) handleValidateInvitation(w http.ResponseWriter, r *http.Request) {
	invitation, invOrg, err := h.invites.Validate(r.Context(), r.PathValue("token"))
	if err != nil {
		respondInviteError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"org_name":   invOrg.Name,
		"email":      invitation.Email,
		"role":       invitation.Role,
		"expires_at": invitation.ExpiresAt,
	})
}

type acceptInviteRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *Handlers) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "weak_password", "password must be at least 8 characters")
		return
	}

	membership, err := h.invites.Accept(r.Context(), r.PathValue("token"), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		respondInviteError(w, err)
		return
	}

	// Sign the member in immediately. Accept only succeeds once the
	// password is known to match the account, so a session is safe here.
	user, err := h.stores.Users.Get(r.Context(), membership.UserID)
	if err == nil {
		token, _, serr := h.EstablishSession(r.Context(), user, r.UserAgent(), ClientIPFromContext(r.Context()))
		if serr == nil {
			login.SetSessionCookie(w, token, h.sessionTTL)
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"org_id": membership.OrgID,
		"role":   membership.Role,
	})
}

// handleAcceptInvitationAsUser lets an already signed-in user join the
// inviting organization without creating a new account.
func (h *Handlers) handleAcceptInvitationAsUser(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	membership, err := h.invites.AcceptAsUser(r.Context(), r.PathValue("token"), ident.User)
	if err != nil {
		respondInviteError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"org_id": membership.OrgID,
		"role":   membership.Role,
	})
}

func respondInviteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invite.ErrInvalidToken):
		respondError(w, http.StatusNotFound, "invalid_token", "this invitation link is not valid")
	case errors.Is(err, invite.ErrAlreadyUsed):
		respondError(w, http.StatusGone, "already_used", "this invitation has already been accepted")
	case errors.Is(err, invite.ErrExpired):
		respondError(w, http.StatusGone, "expired", "this invitation has expired")
	case errors.Is(err, invite.ErrEmailMismatch):
		respondError(w, http.StatusForbidden, "email_mismatch", "this invitation was issued for a different email address")
	case errors.Is(err, identity.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "an account with this email already exists and the password does not match")
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		respondError(w, http.StatusForbidden, "email_not_confirmed", "confirm your existing account before accepting the invitation")
	default:
		log.Error().Err(err).Msg("Invitation operation failed")
		respondError(w, http.StatusInternalServerError, "internal", "could not process the invitation")
	}
}
