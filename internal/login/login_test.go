package login

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestGithub(t *testing.T, establish EstablishSession) *Github {
	t.Helper()

	if establish == nil {
		establish = func(ctx context.Context, info *UserInfo, userAgent, clientIP string) (string, time.Duration, error) {
			return "token", time.Hour, nil
		}
	}

	gh, err := NewGithub("test-client-id", "test-client-secret", "http://localhost/callback", establish)
	require.NoError(t, err)

	return gh
}

func TestNewSigner_shortSecret(t *testing.T) {
	_, err := NewSigner([]byte("too short"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "32 bytes")
}

func TestSigner_roundTrip(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	sessionID, err := uuid.NewV7()
	require.NoError(t, err)

	token, err := signer.Sign(sessionID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, sessionID, got)
}

func TestSigner_tamperedToken(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	sessionID, err := uuid.NewV7()
	require.NoError(t, err)

	token, err := signer.Sign(sessionID, time.Hour)
	require.NoError(t, err)

	// Flip a character in the payload; the signature no longer matches.
	tampered := "A" + token[1:]
	_, err = signer.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSigner_wrongSecret(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	other, err := NewSigner([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	sessionID, err := uuid.NewV7()
	require.NoError(t, err)

	token, err := signer.Sign(sessionID, time.Hour)
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSigner_expiredToken(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	sessionID, err := uuid.NewV7()
	require.NoError(t, err)

	token, err := signer.Sign(sessionID, -time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrExpiredSession)
}

func TestSigner_garbageTokens(t *testing.T) {
	signer, err := NewSigner(testSecret)
	require.NoError(t, err)

	for _, token := range []string{"", "no-dot", "a.b.c", "!!!.???"} {
		_, err := signer.Verify(token)
		require.ErrorIs(t, err, ErrInvalidSession, "token %q", token)
	}
}

func TestSessionCookie_setAndClear(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, "some-token", time.Hour)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	require.Equal(t, "some-token", cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
	require.True(t, cookies[0].Secure)
	require.Equal(t, 3600, cookies[0].MaxAge)

	w = httptest.NewRecorder()
	ClearSessionCookie(w)

	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "the-token"})

	token, err := TokenFromRequest(r)
	require.NoError(t, err)
	require.Equal(t, "the-token", token)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = TokenFromRequest(r)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestNewGithub_missingCredentials(t *testing.T) {
	_, err := NewGithub("", "secret", "http://localhost/callback", func(ctx context.Context, info *UserInfo, userAgent, clientIP string) (string, time.Duration, error) {
		return "", 0, nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "client ID")
}

func TestNewGithub_missingCallback(t *testing.T) {
	_, err := NewGithub("id", "secret", "http://localhost/callback", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "callback")
}

func TestGithub_saveState(t *testing.T) {
	gh := newTestGithub(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	state := gh.saveState(w, r)

	require.NotEmpty(t, state)
	require.Greater(t, len(state), 10)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	cookie := cookies[0]
	require.Equal(t, "state", cookie.Name)
	require.Equal(t, state, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
}

func TestGithub_saveState_randomness(t *testing.T) {
	gh := newTestGithub(t, nil)

	states := make(map[string]bool)
	for range 10 {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		states[gh.saveState(w, r)] = true
	}

	// All states should be unique
	require.Len(t, states, 10)
}

func TestGithub_LoginHandler(t *testing.T) {
	gh := newTestGithub(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/login", nil)

	gh.LoginHandler(w, r)

	// Should redirect to GitHub
	require.Equal(t, http.StatusFound, w.Code)

	location := w.Header().Get("Location")
	require.Contains(t, location, "github.com/login/oauth/authorize")
	require.Contains(t, location, "client_id=test-client-id")
	require.Contains(t, location, "scope=user%3Aemail")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "state", cookies[0].Name)
}

func TestGithub_CallbackHandler_invalidRequest(t *testing.T) {
	gh := newTestGithub(t, nil)

	tests := []struct {
		name  string
		state string
		code  string
	}{
		{"missing state", "", "some-code"},
		{"missing code", "some-state", ""},
		{"missing both", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/callback?state="+tt.state+"&code="+tt.code, nil)

			gh.CallbackHandler(w, r)

			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Contains(t, w.Body.String(), "Authentication failed")
		})
	}
}

func TestGithub_CallbackHandler_missingStateCookie(t *testing.T) {
	gh := newTestGithub(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/callback?state=some-state&code=some-code", nil)

	gh.CallbackHandler(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Authentication failed")
}

func TestGithub_CallbackHandler_stateMismatch(t *testing.T) {
	gh := newTestGithub(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/callback?state=wrong-state&code=some-code", nil)
	r.AddCookie(&http.Cookie{
		Name:  "state",
		Value: "correct-state",
	})

	gh.CallbackHandler(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Authentication failed")
	require.False(t, strings.Contains(w.Header().Get("Location"), "dashboard"))
}
