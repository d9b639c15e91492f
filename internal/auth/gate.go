// Package auth is the request authorization gate. Every protected route
// passes through here: the session cookie is verified, the server-side
// session loaded, the active organization resolved, and the membership role
// checked before a handler runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/impacthq/impactos/internal/login"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store"
	"github.com/impacthq/impactos/internal/telemetry"
	"github.com/impacthq/impactos/internal/tenant"
	"github.com/rs/zerolog/log"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is everything the gate learned about the request. Membership is
// nil on routes that only require authentication, never on routes behind
// RequireRole.
type Identity struct {
	User       *models.User
	Session    *models.Session
	Membership *models.Membership
}

type Gate struct {
	signer        *login.Signer
	users         store.UserStore
	sessions      store.SessionStore
	resolver      *tenant.Resolver
	loginURL      string
	onboardingURL string
}

func NewGate(signer *login.Signer, users store.UserStore, sessions store.SessionStore, resolver *tenant.Resolver, loginURL, onboardingURL string) (*Gate, error) {
	if signer == nil || users == nil || sessions == nil || resolver == nil {
		return nil, fmt.Errorf("signer, stores, and resolver are required")
	}
	if loginURL == "" {
		loginURL = "/login"
	}
	if onboardingURL == "" {
		onboardingURL = "/onboarding"
	}
	return &Gate{
		signer:        signer,
		users:         users,
		sessions:      sessions,
		resolver:      resolver,
		loginURL:      loginURL,
		onboardingURL: onboardingURL,
	}, nil
}

// RequireAuth verifies the session cookie and loads the session and user.
// Failures redirect to the login page with an error_code query parameter so
// the frontend can explain what happened.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.authenticate(r)
		if err != nil {
			g.denyUnauthenticated(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOrg builds on RequireAuth and additionally resolves the active
// organization, attaching the membership to the identity. Users with no
// organization are sent to onboarding.
func (g *Gate) RequireOrg(next http.Handler) http.Handler {
	return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())

		start := time.Now()
		m, err := g.resolver.ResolveActiveOrg(r.Context(), identity.Session)
		telemetry.GetMetrics().SessionResolveDuration.Record(r.Context(),
			float64(time.Since(start).Microseconds())/1000.0)
		if err != nil {
			if errors.Is(err, tenant.ErrNoOrganization) {
				log.Debug().
					Str("user_id", identity.User.UserID.String()).
					Msg("User has no organization, redirecting to onboarding")
				http.Redirect(w, r, g.onboardingURL, http.StatusFound)
				return
			}

			log.Error().Err(err).Msg("Failed to resolve active organization")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		identity.Membership = m
		tenant.SetActiveOrgCookie(w, m.OrgID)

		next.ServeHTTP(w, r)
	}))
}

// RequireRole builds on RequireOrg and rejects requests whose membership
// role is below min.
func (g *Gate) RequireRole(min models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.RequireOrg(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())

			if !identity.Membership.Role.AtLeast(min) {
				telemetry.GetMetrics().AccessDeniedTotal.Add(r.Context(), 1)

				log.Debug().
					Str("user_id", identity.User.UserID.String()).
					Str("role", string(identity.Membership.Role)).
					Str("required", string(min)).
					Str("path", r.URL.Path).
					Msg("Access denied")

				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}))
	}
}

func (g *Gate) authenticate(r *http.Request) (*Identity, error) {
	token, err := login.TokenFromRequest(r)
	if err != nil {
		return nil, err
	}

	sessionID, err := g.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	session, err := g.sessions.Get(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionExpired):
			return nil, login.ErrExpiredSession
		case errors.Is(err, store.ErrSessionNotFound):
			return nil, login.ErrInvalidSession
		default:
			return nil, err
		}
	}

	if session.IsExpired() {
		return nil, login.ErrExpiredSession
	}

	user, err := g.users.Get(r.Context(), session.UserID)
	if err != nil {
		return nil, login.ErrInvalidSession
	}

	// Best effort; a stale last_used_at never blocks a request.
	if err := g.sessions.UpdateLastUsed(r.Context(), sessionID); err != nil {
		log.Warn().Err(err).Msg("Failed to update session last_used_at")
	}

	return &Identity{User: user, Session: session}, nil
}

func (g *Gate) denyUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	errorCode := "invalid"
	if errors.Is(err, login.ErrExpiredSession) {
		errorCode = "expired"
		log.Debug().Str("path", r.URL.Path).Msg("Session expired, redirecting to login")
	} else {
		log.Debug().Str("path", r.URL.Path).Msg("Invalid session, redirecting to login")
	}

	login.ClearSessionCookie(w)
	tenant.ClearActiveOrgCookie(w)

	http.Redirect(w, r, g.loginURL+"?error_code="+errorCode, http.StatusFound)
}

// IdentityFromContext extracts the identity placed by the gate middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok
}
