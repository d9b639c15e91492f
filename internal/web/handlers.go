// Package web is the HTTP surface: JSON handlers for authentication,
// organizations, invitations, the CRM, and report downloads, plus the router
// that wires them behind the authorization gate.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/auth"
	"github.com/impacthq/impactos/internal/crm"
	"github.com/impacthq/impactos/internal/identity"
	"github.com/impacthq/impactos/internal/invite"
	"github.com/impacthq/impactos/internal/login"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/org"
	"github.com/impacthq/impactos/internal/reports"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/telemetry"
	"github.com/impacthq/impactos/internal/tenant"
	"github.com/rs/zerolog/log"
)

const minPasswordLength = 8

type Handlers struct {
	signer     *login.Signer
	stores     *store.Stores
	provider   identity.Provider
	gate       *auth.Gate
	resolver   *tenant.Resolver
	invites    *invite.Service
	orgs       *org.Service
	crm        *crm.Service
	reports    *reports.Service
	sessionTTL time.Duration
}

func NewHandlers(signer *login.Signer, stores *store.Stores, provider identity.Provider, gate *auth.Gate, resolver *tenant.Resolver, invites *invite.Service, orgs *org.Service, crmService *crm.Service, reportService *reports.Service, sessionTTL time.Duration) (*Handlers, error) {
	if signer == nil || stores == nil || provider == nil || gate == nil || resolver == nil {
		return nil, fmt.Errorf("signer, stores, provider, gate, and resolver are required")
	}
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	return &Handlers{
		signer:     signer,
		stores:     stores,
		provider:   provider,
		gate:       gate,
		resolver:   resolver,
		invites:    invites,
		orgs:       orgs,
		crm:        crmService,
		reports:    reportService,
		sessionTTL: sessionTTL,
	}, nil
}

type userView struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Confirmed bool      `json:"confirmed"`
}

func viewUser(u *models.User) userView {
	return userView{
		UserID:    u.UserID,
		Email:     u.Email,
		Name:      u.DisplayName(),
		AvatarURL: u.AvatarURL,
		Confirmed: u.EmailConfirmedAt != nil,
	}
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// handleSignup registers a user with the identity provider. The provider
// sends the confirmation email; until it is clicked, sign-in fails with
// email_not_confirmed.
func (h *Handlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "weak_password", "password must be at least 8 characters")
		return
	}

	providerUser, err := h.provider.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			respondError(w, http.StatusConflict, "user_exists", "an account with this email already exists")
			return
		}
		log.Error().Err(err).Msg("Signup failed")
		respondError(w, http.StatusBadGateway, "provider_error", "could not create the account")
		return
	}

	user, err := h.mirrorUser(r.Context(), providerUser, req.FirstName, req.LastName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mirror user after signup")
		respondError(w, http.StatusInternalServerError, "internal", "could not create the account")
		return
	}

	telemetry.GetMetrics().SignupsTotal.Add(r.Context(), 1)

	respondJSON(w, http.StatusCreated, viewUser(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	providerSession, err := h.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		telemetry.GetMetrics().LoginErrorsTotal.Add(r.Context(), 1)
		switch {
		case errors.Is(err, identity.ErrEmailNotConfirmed):
			respondError(w, http.StatusForbidden, "email_not_confirmed", "confirm your email address before signing in")
		case errors.Is(err, identity.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
		default:
			log.Error().Err(err).Msg("Login failed")
			respondError(w, http.StatusBadGateway, "provider_error", "could not sign in")
		}
		return
	}

	user, err := h.mirrorUser(r.Context(), providerSession.User, "", "")
	if err != nil {
		log.Error().Err(err).Msg("Failed to mirror user at login")
		respondError(w, http.StatusInternalServerError, "internal", "could not sign in")
		return
	}

	token, _, err := h.EstablishSession(r.Context(), user, r.UserAgent(), ClientIPFromContext(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		respondError(w, http.StatusInternalServerError, "internal", "could not sign in")
		return
	}

	login.SetSessionCookie(w, token, h.sessionTTL)

	respondJSON(w, http.StatusOK, viewUser(user))
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, err := login.TokenFromRequest(r); err == nil {
		if sessionID, verr := h.signer.Verify(token); verr == nil {
			if derr := h.stores.Sessions.Delete(r.Context(), sessionID); derr == nil {
				telemetry.GetMetrics().SessionsRevoked.Add(r.Context(), 1)
			}
		}
	}

	login.ClearSessionCookie(w)
	tenant.ClearActiveOrgCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// handleLogoutAll revokes every session the user holds, on every device.
func (h *Handlers) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	revoked, err := h.stores.Sessions.DeleteByUser(r.Context(), ident.User.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to revoke sessions")
		respondError(w, http.StatusInternalServerError, "internal", "could not sign out everywhere")
		return
	}
	telemetry.GetMetrics().SessionsRevoked.Add(r.Context(), int64(revoked))

	login.ClearSessionCookie(w)
	tenant.ClearActiveOrgCookie(w)

	respondJSON(w, http.StatusOK, map[string]any{"status": "signed_out", "sessions_revoked": revoked})
}

// handleConfirm is the landing endpoint for the provider's confirmation
// email. It validates the access token carried in the link and records the
// confirmation on the local mirror.
func (h *Handlers) handleConfirm(w http.ResponseWriter, r *http.Request) {
	accessToken := r.URL.Query().Get("access_token")
	if accessToken == "" {
		http.Redirect(w, r, "/login?error_code=invalid_confirmation", http.StatusFound)
		return
	}

	providerUser, err := h.provider.GetSession(r.Context(), accessToken)
	if err != nil {
		log.Debug().Err(err).Msg("Email confirmation token rejected")
		http.Redirect(w, r, "/login?error_code=invalid_confirmation", http.StatusFound)
		return
	}

	user, err := h.stores.Users.Get(r.Context(), providerUser.ID)
	if err == nil && user.EmailConfirmedAt == nil {
		now := time.Now()
		user.EmailConfirmedAt = &now
		user.UpdatedAt = now
		if err := h.stores.Users.Update(r.Context(), user); err != nil {
			log.Warn().Err(err).Msg("Failed to record email confirmation")
		}
	}

	http.Redirect(w, r, "/login?confirmed=true", http.StatusFound)
}

func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())

	orgs, err := h.orgs.ListForUser(r.Context(), ident.User.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list organizations")
		respondError(w, http.StatusInternalServerError, "internal", "could not load profile")
		return
	}

	var activeOrgID *uuid.UUID
	if ident.Session.ActiveOrgID.Valid {
		activeOrgID = &ident.Session.ActiveOrgID.UUID
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user":          viewUser(ident.User),
		"organizations": orgs,
		"active_org_id": activeOrgID,
	})
}

type sidebarRequest struct {
	State string `json:"state"`
}

// handleSetSidebar stores the sidebar preference in the script-readable
// cookie so the frontend can render the first paint without a round trip.
func (h *Handlers) handleSetSidebar(w http.ResponseWriter, r *http.Request) {
	var req sidebarRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.State != "expanded" && req.State != "collapsed" {
		respondError(w, http.StatusBadRequest, "bad_request", "state must be expanded or collapsed")
		return
	}

	tenant.SetSidebarCookie(w, req.State)

	respondJSON(w, http.StatusOK, map[string]string{"sidebar_state": req.State})
}

// EstablishSession creates a server-side session for an authenticated user
// and returns the signed cookie token. Used by password login and by the
// GitHub OAuth callback.
func (h *Handlers) EstablishSession(ctx context.Context, user *models.User, userAgent, clientIP string) (string, *models.Session, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		SessionID:  sessionID,
		UserID:     user.UserID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(h.sessionTTL),
		LastUsedAt: now,
		UserAgent:  userAgent,
		IPAddress:  clientIP,
	}

	// The legacy single-tenant hint seeds the first session; memberships
	// are checked on resolution either way.
	if user.DefaultOrgID.Valid {
		session.ActiveOrgID = user.DefaultOrgID
	}

	if err := h.stores.Sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := h.signer.Sign(sessionID, h.sessionTTL)
	if err != nil {
		return "", nil, err
	}

	telemetry.GetMetrics().LoginsTotal.Add(ctx, 1)

	return token, session, nil
}

// EstablishFromOAuth adapts EstablishSession to the GitHub flow's callback
// signature, linking or creating the local user by email.
func (h *Handlers) EstablishFromOAuth(ctx context.Context, info *login.UserInfo, userAgent, clientIP string) (string, time.Duration, error) {
	user, err := h.stores.Users.GetByEmail(ctx, info.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		userID, uerr := uuid.NewV7()
		if uerr != nil {
			return "", 0, fmt.Errorf("failed to generate user id: %w", uerr)
		}

		now := time.Now()
		first, last := splitName(info.Name)
		user = &models.User{
			UserID:           userID,
			Email:            info.Email,
			FirstName:        first,
			LastName:         last,
			AvatarURL:        info.AvatarURL,
			EmailConfirmedAt: &now, // GitHub verified the address
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := h.stores.Users.Create(ctx, user); err != nil {
			return "", 0, fmt.Errorf("failed to create user: %w", err)
		}
	} else if err != nil {
		return "", 0, fmt.Errorf("failed to look up user: %w", err)
	}

	token, _, err := h.EstablishSession(ctx, user, userAgent, clientIP)
	if err != nil {
		return "", 0, err
	}

	return token, h.sessionTTL, nil
}

func (h *Handlers) mirrorUser(ctx context.Context, pu *identity.User, firstName, lastName string) (*models.User, error) {
	user, err := h.stores.Users.Get(ctx, pu.ID)
	if err == nil {
		changed := false
		if user.EmailConfirmedAt == nil && pu.EmailConfirmedAt != nil {
			user.EmailConfirmedAt = pu.EmailConfirmedAt
			changed = true
		}
		if changed {
			user.UpdatedAt = time.Now()
			if uerr := h.stores.Users.Update(ctx, user); uerr != nil {
				log.Warn().Err(uerr).Msg("Failed to refresh user mirror")
			}
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	if firstName == "" {
		firstName = pu.FirstName
	}
	if lastName == "" {
		lastName = pu.LastName
	}

	now := time.Now()
	user = &models.User{
		UserID:           pu.ID,
		Email:            pu.Email,
		FirstName:        firstName,
		LastName:         lastName,
		AvatarURL:        pu.AvatarURL,
		EmailConfirmedAt: pu.EmailConfirmedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.stores.Users.Create(ctx, user); err != nil && !errors.Is(err, store.ErrUserAlreadyExists) {
		return nil, err
	}
	return user, nil
}

func splitName(full string) (string, string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ' ' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
