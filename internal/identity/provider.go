// Package identity wraps the external identity provider behind a narrow
// interface so workflow code never talks to the provider API directly and
// the provider is swappable without touching invitation or session logic.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials covers bad email/password and unknown users; the
	// provider deliberately does not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
)

// User is the provider's view of a principal. The application mirrors this
// into its own users table; the provider stays the owner of credentials and
// confirmation state.
type User struct {
	ID               uuid.UUID
	Email            string
	EmailConfirmedAt *time.Time
	FirstName        string
	LastName         string
	AvatarURL        string
}

// Session is an authenticated provider session.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *User
}

// Provider is the full surface this system consumes from the identity
// provider. Nothing else of the provider API is used.
type Provider interface {
	// SignUp registers a new user. The provider sends its own confirmation
	// email; the returned user has no confirmation timestamp yet.
	SignUp(ctx context.Context, email, password string) (*User, error)

	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut revokes the session behind the access token.
	SignOut(ctx context.Context, accessToken string) error

	// CreateUserPreConfirmed registers a user with the email already
	// confirmed. Used by invitation acceptance: the invitation token itself
	// proves ownership of the address, so the normal confirmation step is
	// skipped.
	CreateUserPreConfirmed(ctx context.Context, email, password string) (*User, error)

	// DeleteUser removes a user from the provider. This is the compensating
	// action for the invitation-accept saga.
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// GetSession validates an access token and returns the user it belongs to.
	GetSession(ctx context.Context, accessToken string) (*User, error)
}
