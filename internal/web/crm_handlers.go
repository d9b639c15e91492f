package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/auth"
	"github.com/impacthq/impactos/internal/crm"
	"github.com/impacthq/impactos/internal/reports"
	"github.com/impacthq/impactos/internal/store"
	"github.com/rs/zerolog/log"
)

func respondCRMError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrCompanyNotFound):
		respondError(w, http.StatusNotFound, "not_found", "company not found")
	case errors.Is(err, store.ErrContactNotFound):
		respondError(w, http.StatusNotFound, "not_found", "contact not found")
	case errors.Is(err, store.ErrInteractionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "interaction not found")
	case errors.Is(err, crm.ErrNameRequired):
		respondError(w, http.StatusBadRequest, "name_required", "name is required")
	case errors.Is(err, crm.ErrNotesRequired):
		respondError(w, http.StatusBadRequest, "notes_required", "notes are required")
	case errors.Is(err, crm.ErrInvalidStage):
		respondError(w, http.StatusBadRequest, "invalid_stage", "unknown company stage")
	case errors.Is(err, crm.ErrInvalidKind):
		respondError(w, http.StatusBadRequest, "invalid_kind", "unknown interaction kind")
	default:
		log.Error().Err(err).Msg("CRM operation failed")
		respondError(w, http.StatusInternalServerError, "internal", "operation failed")
	}
}

func (h *Handlers) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	companies, err := h.crm.ListCompanies(r.Context(), ident.Membership.OrgID)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, companies)
}

func (h *Handlers) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var input crm.CompanyInput
	if !decodeJSON(w, r, &input) {
		return
	}

	company, err := h.crm.CreateCompany(r.Context(), ident.Membership.OrgID, input)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, company)
}

func (h *Handlers) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	companyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid company id")
		return
	}

	company, err := h.crm.GetCompany(r.Context(), ident.Membership.OrgID, companyID)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, company)
}

func (h *Handlers) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	companyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid company id")
		return
	}

	var input crm.CompanyInput
	if !decodeJSON(w, r, &input) {
		return
	}

	company, err := h.crm.UpdateCompany(r.Context(), ident.Membership.OrgID, companyID, input)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, company)
}

func (h *Handlers) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	companyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid company id")
		return
	}

	if err := h.crm.DeleteCompany(r.Context(), ident.Membership.OrgID, companyID); err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var input crm.ContactInput
	if !decodeJSON(w, r, &input) {
		return
	}

	contact, err := h.crm.CreateContact(r.Context(), ident.Membership.OrgID, input)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, contact)
}

func (h *Handlers) handleListContacts(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	companyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid company id")
		return
	}

	contacts, err := h.crm.ListContacts(r.Context(), ident.Membership.OrgID, companyID)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, contacts)
}

func (h *Handlers) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	contactID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid contact id")
		return
	}

	if err := h.crm.DeleteContact(r.Context(), ident.Membership.OrgID, contactID); err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) handleLogInteraction(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	var input crm.InteractionInput
	if !decodeJSON(w, r, &input) {
		return
	}

	interaction, err := h.crm.LogInteraction(r.Context(), ident.Membership.OrgID, ident.User.UserID, input)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, interaction)
}

func (h *Handlers) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	companyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid company id")
		return
	}

	interactions, err := h.crm.ListInteractions(r.Context(), ident.Membership.OrgID, companyID)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, interactions)
}

func (h *Handlers) handleOpenCommitments(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	before := time.Now()
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", "before must be a YYYY-MM-DD date")
			return
		}
		before = parsed
	}

	commitments, err := h.crm.OpenCommitments(r.Context(), ident.Membership.OrgID, before)
	if err != nil {
		respondCRMError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, commitments)
}

// handleComplianceReport streams the overdue-commitments CSV as a download.
func (h *Handlers) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	orgRecord, err := h.stores.Organizations.Get(r.Context(), ident.Membership.OrgID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "could not build the report")
		return
	}

	asOf := time.Now()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+reports.Filename(orgRecord.Slug, asOf)+`"`)

	if err := h.reports.WriteComplianceCSV(r.Context(), w, ident.Membership.OrgID, asOf); err != nil {
		// Headers are gone already; log and cut the stream.
		log.Error().Err(err).Msg("Failed to write compliance report")
	}
}
