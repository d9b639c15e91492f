package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/impacthq/impactos/internal/client"
	"github.com/rs/zerolog/log"
)

// GoTrue is a Provider backed by a hosted GoTrue-compatible auth service
// (the API surface exposed by Supabase Auth). User-facing calls carry the
// anon key; admin calls (pre-confirmed create, delete) carry the service
// role key and must never reach a browser.
type GoTrue struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
}

// NewGoTrue creates a provider client. The settings document is the only
// cacheable endpoint, so the shared caching HTTP client is used for all
// calls; POSTs pass through untouched. With a cacheDir the cache survives
// restarts; left empty it stays in memory.
func NewGoTrue(baseURL, anonKey, serviceKey, cacheDir string) (*GoTrue, error) {
	if baseURL == "" || anonKey == "" {
		return nil, fmt.Errorf("identity provider URL and anon key are required")
	}

	return &GoTrue{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		httpClient: client.NewCachingHTTPClient(cacheDir),
	}, nil
}

type gotrueUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	UserMetadata     struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

type gotrueSession struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int        `json:"expires_in"`
	User        gotrueUser `json:"user"`
}

type gotrueError struct {
	Code    string `json:"error_code"`
	Message string `json:"msg"`
}

// SignUp registers a new user; the provider sends the confirmation email.
func (g *GoTrue) SignUp(ctx context.Context, email, password string) (*User, error) {
	var out gotrueUser
	err := g.do(ctx, http.MethodPost, "/signup", g.anonKey, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return toUser(&out)
}

// SignIn exchanges credentials for a provider session.
func (g *GoTrue) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var out gotrueSession
	err := g.do(ctx, http.MethodPost, "/token?grant_type=password", g.anonKey, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}

	user, err := toUser(&out.User)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken: out.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
		User:        user,
	}, nil
}

// SignOut revokes the session behind the access token.
func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	return g.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// CreateUserPreConfirmed registers a user with email_confirm set, using the
// admin endpoint. The invitation token already proved address ownership.
func (g *GoTrue) CreateUserPreConfirmed(ctx context.Context, email, password string) (*User, error) {
	if g.serviceKey == "" {
		return nil, fmt.Errorf("service role key is required for admin user creation")
	}

	var out gotrueUser
	err := g.do(ctx, http.MethodPost, "/admin/users", g.serviceKey, map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return toUser(&out)
}

// DeleteUser removes a user via the admin endpoint.
func (g *GoTrue) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if g.serviceKey == "" {
		return fmt.Errorf("service role key is required for admin user deletion")
	}
	return g.do(ctx, http.MethodDelete, "/admin/users/"+userID.String(), g.serviceKey, nil, nil)
}

// GetSession validates an access token with the provider and returns the
// user it belongs to.
func (g *GoTrue) GetSession(ctx context.Context, accessToken string) (*User, error) {
	var out gotrueUser
	if err := g.do(ctx, http.MethodGet, "/user", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return toUser(&out)
}

// do performs one provider call. No retries: a failed provider call
// surfaces immediately to the caller.
func (g *GoTrue) do(ctx context.Context, method, path, bearer string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("apikey", g.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return g.mapError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}

func (g *GoTrue) mapError(resp *http.Response) error {
	var gerr gotrueError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &gerr)

	log.Debug().
		Int("status", resp.StatusCode).
		Str("code", gerr.Code).
		Msg("Identity provider error")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidToken
	case gerr.Code == "user_already_exists" || resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(gerr.Message, "already registered"):
		return ErrUserExists
	case gerr.Code == "invalid_credentials" || resp.StatusCode == http.StatusBadRequest && strings.Contains(gerr.Message, "Invalid login"):
		return ErrInvalidCredentials
	case gerr.Code == "email_not_confirmed":
		return ErrEmailNotConfirmed
	case resp.StatusCode == http.StatusNotFound:
		return ErrUserNotFound
	default:
		return fmt.Errorf("identity provider error (status %d): %s", resp.StatusCode, gerr.Message)
	}
}

func toUser(u *gotrueUser) (*User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, fmt.Errorf("provider returned invalid user id: %w", err)
	}
	return &User{
		ID:               id,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		FirstName:        u.UserMetadata.FirstName,
		LastName:         u.UserMetadata.LastName,
		AvatarURL:        u.UserMetadata.AvatarURL,
	}, nil
}
