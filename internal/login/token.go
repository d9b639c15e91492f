// Package login handles browser authentication: the HMAC-signed session
// cookie and the GitHub OAuth sign-in flow. The cookie carries only a signed
// session id; everything about the session itself lives in the session store.
package login

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

// SessionCookieName is the browser cookie holding the signed session id.
const SessionCookieName = "_session"

// Signer signs and verifies session-id tokens. A token proves the cookie was
// minted by this server; whether the session is still live is decided by the
// session store, not the token.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	return &Signer{secret: secret}, nil
}

type tokenPayload struct {
	SessionID uuid.UUID `json:"sid"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Sign creates an HMAC-signed token wrapping the session id.
func (s *Signer) Sign(sessionID uuid.UUID, ttl time.Duration) (string, error) {
	payload := tokenPayload{
		SessionID: sessionID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session token: %w", err)
	}

	encoded := base64.URLEncoding.EncodeToString(data)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	signature := mac.Sum(nil)

	return encoded + "." + base64.URLEncoding.EncodeToString(signature), nil
}

// Verify validates a token and returns the session id it wraps.
func (s *Signer) Verify(token string) (uuid.UUID, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		log.Debug().Msg("Invalid session token format")
		return uuid.Nil, ErrInvalidSession
	}

	encoded := parts[0]
	receivedSig, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		log.Debug().Msg("Invalid session token signature encoding")
		return uuid.Nil, ErrInvalidSession
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	expectedSig := mac.Sum(nil)

	if !hmac.Equal(receivedSig, expectedSig) {
		log.Debug().Msg("Session token HMAC signature validation failed")
		return uuid.Nil, ErrInvalidSession
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		log.Debug().Msg("Invalid session token data encoding")
		return uuid.Nil, ErrInvalidSession
	}

	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Debug().Msg("Failed to unmarshal session token")
		return uuid.Nil, ErrInvalidSession
	}

	if time.Now().After(payload.ExpiresAt) {
		log.Debug().Str("session_id", payload.SessionID.String()).Msg("Session token expired")
		return uuid.Nil, ErrExpiredSession
	}

	return payload.SessionID, nil
}

// SetSessionCookie stores a signed session token in the browser.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest reads the raw session token from the request cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", ErrInvalidSession
	}
	return cookie.Value, nil
}
