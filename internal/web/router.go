package web

import (
	"net/http"
	"strings"

	"filippo.io/csrf"
	"github.com/impacthq/impactos/internal/login"
	"github.com/impacthq/impactos/internal/models"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	applogger "github.com/impacthq/impactos/internal/logger"
)

// RouterConfig carries the pieces the router assembles but does not own.
type RouterConfig struct {
	Handlers    *Handlers
	Github      *login.Github // nil disables the GitHub sign-in routes
	CORSOrigins []string
	Logger      zerolog.Logger
}

// NewRouter builds the full HTTP handler: public auth endpoints, the
// invitation acceptance flow, and the org-scoped API behind the gate. API
// routes get CORS; everything else gets CSRF protection. The whole tree is
// gzip-compressed and request-logged.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	gate := h.gate

	mux := http.NewServeMux()

	// Public authentication endpoints.
	mux.HandleFunc("POST /api/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/confirm", h.handleConfirm)

	if cfg.Github != nil {
		mux.HandleFunc("GET /auth/github", cfg.Github.LoginHandler)
		mux.HandleFunc("GET /auth/github/callback", cfg.Github.CallbackHandler)
	}

	// Public invitation endpoints: the acceptance page works before the
	// invitee has an account.
	mux.HandleFunc("GET /api/invitations/{token}", h.handleValidateInvitation)
	mux.HandleFunc("POST /api/invitations/{token}/accept", h.handleAcceptInvitation)

	// Authenticated, not organization-scoped.
	mux.Handle("GET /api/me", gate.RequireAuth(http.HandlerFunc(h.handleMe)))
	mux.Handle("POST /api/me/sidebar", gate.RequireAuth(http.HandlerFunc(h.handleSetSidebar)))
	mux.Handle("POST /api/auth/logout-all", gate.RequireAuth(http.HandlerFunc(h.handleLogoutAll)))
	mux.Handle("GET /api/orgs", gate.RequireAuth(http.HandlerFunc(h.handleListOrgs)))
	mux.Handle("POST /api/orgs", gate.RequireAuth(http.HandlerFunc(h.handleCreateOrg)))
	mux.Handle("POST /api/orgs/{id}/switch", gate.RequireAuth(http.HandlerFunc(h.handleSwitchOrg)))
	mux.Handle("POST /api/invitations/{token}/join", gate.RequireAuth(http.HandlerFunc(h.handleAcceptInvitationAsUser)))

	// Organization-scoped, role-gated.
	viewer := gate.RequireRole(models.RoleViewer)
	editor := gate.RequireRole(models.RoleEditor)
	owner := gate.RequireRole(models.RoleOwner)

	mux.Handle("GET /api/org/members", viewer(http.HandlerFunc(h.handleListMembers)))
	mux.Handle("PATCH /api/org/members/{userID}", owner(http.HandlerFunc(h.handleUpdateMemberRole)))
	mux.Handle("DELETE /api/org/members/{userID}", owner(http.HandlerFunc(h.handleRemoveMember)))

	mux.Handle("PATCH /api/org", owner(http.HandlerFunc(h.handleRenameOrg)))
	mux.Handle("DELETE /api/org", owner(http.HandlerFunc(h.handleDeleteOrg)))

	mux.Handle("GET /api/org/invitations", editor(http.HandlerFunc(h.handleListInvitations)))
	mux.Handle("POST /api/org/invitations", owner(http.HandlerFunc(h.handleIssueInvitation)))
	mux.Handle("DELETE /api/org/invitations/{id}", owner(http.HandlerFunc(h.handleRevokeInvitation)))

	mux.Handle("GET /api/org/companies", viewer(http.HandlerFunc(h.handleListCompanies)))
	mux.Handle("POST /api/org/companies", editor(http.HandlerFunc(h.handleCreateCompany)))
	mux.Handle("GET /api/org/companies/{id}", viewer(http.HandlerFunc(h.handleGetCompany)))
	mux.Handle("PATCH /api/org/companies/{id}", editor(http.HandlerFunc(h.handleUpdateCompany)))
	mux.Handle("DELETE /api/org/companies/{id}", editor(http.HandlerFunc(h.handleDeleteCompany)))

	mux.Handle("POST /api/org/contacts", editor(http.HandlerFunc(h.handleCreateContact)))
	mux.Handle("GET /api/org/companies/{id}/contacts", viewer(http.HandlerFunc(h.handleListContacts)))
	mux.Handle("DELETE /api/org/contacts/{id}", editor(http.HandlerFunc(h.handleDeleteContact)))

	mux.Handle("POST /api/org/interactions", editor(http.HandlerFunc(h.handleLogInteraction)))
	mux.Handle("GET /api/org/companies/{id}/interactions", viewer(http.HandlerFunc(h.handleListInteractions)))
	mux.Handle("GET /api/org/commitments", viewer(http.HandlerFunc(h.handleOpenCommitments)))

	mux.Handle("GET /api/org/reports/compliance", viewer(http.HandlerFunc(h.handleComplianceReport)))

	// CSRF protection for browser-facing routes; API routes get CORS.
	protection := csrf.New()
	corsHandler := withCORS(cfg.CORSOrigins, mux)
	protected := protection.Handler(mux)

	split := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			corsHandler.ServeHTTP(w, r)
		} else {
			protected.ServeHTTP(w, r)
		}
	})

	handler := ClientIPMiddleware()(split)
	handler = applogger.Requests(cfg.Logger)(handler)

	return gzhttp.GzipHandler(handler)
}

// isAPIRoute returns true for paths served with CORS instead of CSRF.
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support for the JSON API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
