package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/login"
	"github.com/impacthq/impactos/internal/models"
	"github.com/impacthq/impactos/internal/store/memory"
	"github.com/impacthq/impactos/internal/tenant"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type gateFixture struct {
	gate        *Gate
	signer      *login.Signer
	users       *memory.UserStore
	sessions    *memory.SessionStore
	memberships *memory.MembershipStore
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	signer, err := login.NewSigner(testSecret)
	require.NoError(t, err)

	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()
	memberships := memory.NewMembershipStore()

	gate, err := NewGate(signer, users, sessions, tenant.NewResolver(memberships, sessions), "/login", "/onboarding")
	require.NoError(t, err)

	return &gateFixture{
		gate:        gate,
		signer:      signer,
		users:       users,
		sessions:    sessions,
		memberships: memberships,
	}
}

func (f *gateFixture) createUser(t *testing.T) *models.User {
	t.Helper()

	userID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	user := &models.User{
		UserID:    userID,
		Email:     userID.String() + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.users.Create(context.Background(), user))

	return user
}

func (f *gateFixture) createSession(t *testing.T, userID uuid.UUID, expiresAt time.Time) *models.Session {
	t.Helper()

	sessionID, err := uuid.NewV7()
	require.NoError(t, err)

	now := time.Now()
	session := &models.Session{
		SessionID:  sessionID,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		LastUsedAt: now,
	}
	require.NoError(t, f.sessions.Create(context.Background(), session))

	return session
}

func (f *gateFixture) createMembership(t *testing.T, userID, orgID uuid.UUID, role models.Role) *models.Membership {
	t.Helper()

	membershipID, err := uuid.NewV7()
	require.NoError(t, err)

	m := &models.Membership{
		MembershipID: membershipID,
		UserID:       userID,
		OrgID:        orgID,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, f.memberships.Create(context.Background(), m))

	return m
}

func (f *gateFixture) requestWithSession(t *testing.T, sessionID uuid.UUID) *http.Request {
	t.Helper()

	token, err := f.signer.Sign(sessionID, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(&http.Cookie{Name: login.SessionCookieName, Value: token})

	return r
}

func TestRequireAuth_validSession(t *testing.T) {
	f := newGateFixture(t)
	user := f.createUser(t)
	session := f.createSession(t, user.UserID, time.Now().Add(time.Hour))

	var identityInContext *Identity
	handler := f.gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		identityInContext = identity
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.requestWithSession(t, session.SessionID))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, identityInContext)
	require.Equal(t, user.UserID, identityInContext.User.UserID)
	require.Equal(t, session.SessionID, identityInContext.Session.SessionID)
	require.Nil(t, identityInContext.Membership)
}

func TestRequireAuth_noCookie(t *testing.T) {
	f := newGateFixture(t)

	handlerCalled := false
	handler := f.gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	require.False(t, handlerCalled)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login?error_code=invalid", w.Header().Get("Location"))
}

func TestRequireAuth_expiredSession(t *testing.T) {
	f := newGateFixture(t)
	user := f.createUser(t)
	session := f.createSession(t, user.UserID, time.Now().Add(-time.Hour))

	handler := f.gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.requestWithSession(t, session.SessionID))

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login?error_code=expired", w.Header().Get("Location"))
}

func TestRequireAuth_unknownSession(t *testing.T) {
	f := newGateFixture(t)

	unknownID, err := uuid.NewV7()
	require.NoError(t, err)

	handler := f.gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.requestWithSession(t, unknownID))

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login?error_code=invalid", w.Header().Get("Location"))
}

func TestRequireAuth_tamperedToken(t *testing.T) {
	f := newGateFixture(t)

	handler := f.gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(&http.Cookie{Name: login.SessionCookieName, Value: "not.signed"})
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login?error_code=invalid", w.Header().Get("Location"))
}

func TestRequireOrg_resolvesMembership(t *testing.T) {
	f := newGateFixture(t)
	user := f.createUser(t)
	session := f.createSession(t, user.UserID, time.Now().Add(time.Hour))

	orgID, err := uuid.NewV7()
	require.NoError(t, err)
	f.createMembership(t, user.UserID, orgID, models.RoleEditor)

	var identityInContext *Identity
	handler := f.gate.RequireOrg(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identityInContext, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.requestWithSession(t, session.SessionID))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, identityInContext.Membership)
	require.Equal(t, orgID, identityInContext.Membership.OrgID)

	// The resolved organization is mirrored into the frontend cookie.
	var orgCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == tenant.ActiveOrgCookieName {
			orgCookie = c
		}
	}
	require.NotNil(t, orgCookie)
	require.Equal(t, orgID.String(), orgCookie.Value)
}

func TestRequireOrg_noOrganization(t *testing.T) {
	f := newGateFixture(t)
	user := f.createUser(t)
	session := f.createSession(t, user.UserID, time.Now().Add(time.Hour))

	handler := f.gate.RequireOrg(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, f.requestWithSession(t, session.SessionID))

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/onboarding", w.Header().Get("Location"))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		role       models.Role
		required   models.Role
		wantStatus int
	}{
		{"owner can edit", models.RoleOwner, models.RoleEditor, http.StatusOK},
		{"editor can edit", models.RoleEditor, models.RoleEditor, http.StatusOK},
		{"viewer cannot edit", models.RoleViewer, models.RoleEditor, http.StatusForbidden},
		{"editor cannot administer", models.RoleEditor, models.RoleOwner, http.StatusForbidden},
		{"viewer can view", models.RoleViewer, models.RoleViewer, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)
			user := f.createUser(t)
			session := f.createSession(t, user.UserID, time.Now().Add(time.Hour))

			orgID, err := uuid.NewV7()
			require.NoError(t, err)
			f.createMembership(t, user.UserID, orgID, tt.role)

			handler := f.gate.RequireRole(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, f.requestWithSession(t, session.SessionID))

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
