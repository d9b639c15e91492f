package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Local is an in-process Provider for development and tests. Passwords are
// bcrypt-hashed in memory and access tokens are HS256 JWTs, so the rest of
// the system exercises the same code paths as against the hosted provider.
type Local struct {
	mu     sync.RWMutex
	secret []byte
	ttl    time.Duration

	users   map[uuid.UUID]*localUser
	byEmail map[string]uuid.UUID
}

type localUser struct {
	user         User
	passwordHash []byte
}

// NewLocal creates a local identity provider signing tokens with secret.
func NewLocal(secret []byte, tokenTTL time.Duration) (*Local, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token signing secret must be at least 32 bytes")
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Local{
		secret:  secret,
		ttl:     tokenTTL,
		users:   make(map[uuid.UUID]*localUser),
		byEmail: make(map[string]uuid.UUID),
	}, nil
}

// SignUp registers a user. Locally there is no email delivery, so the user
// is confirmed immediately.
func (l *Local) SignUp(ctx context.Context, email, password string) (*User, error) {
	return l.createUser(email, password, true)
}

// CreateUserPreConfirmed registers a user with the email already confirmed.
func (l *Local) CreateUserPreConfirmed(ctx context.Context, email, password string) (*User, error) {
	return l.createUser(email, password, true)
}

func (l *Local) createUser(email, password string, confirmed bool) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := l.byEmail[key]; exists {
		return nil, ErrUserExists
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	u := &localUser{
		user: User{
			ID:    id,
			Email: email,
		},
		passwordHash: hash,
	}
	if confirmed {
		now := time.Now()
		u.user.EmailConfirmedAt = &now
	}

	l.users[id] = u
	l.byEmail[key] = id

	out := u.user
	return &out, nil
}

// SignIn exchanges credentials for a session with a signed JWT.
func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	l.mu.RLock()
	id, exists := l.byEmail[strings.ToLower(email)]
	var u *localUser
	if exists {
		u = l.users[id]
	}
	l.mu.RUnlock()

	if !exists {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expires := time.Now().Add(l.ttl)
	claims := jwt.MapClaims{
		"sub":   u.user.ID.String(),
		"email": u.user.Email,
		"iat":   time.Now().Unix(),
		"exp":   expires.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	user := u.user
	return &Session{
		AccessToken: token,
		ExpiresAt:   expires,
		User:        &user,
	}, nil
}

// SignOut is a no-op locally; tokens simply expire.
func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	return nil
}

// DeleteUser removes a user.
func (l *Local) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, exists := l.users[userID]
	if !exists {
		return ErrUserNotFound
	}

	delete(l.byEmail, strings.ToLower(u.user.Email))
	delete(l.users, userID)
	return nil
}

// GetSession validates an access token and returns its user.
func (l *Local) GetSession(ctx context.Context, accessToken string) (*User, error) {
	token, err := jwt.Parse(accessToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return l.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	u, exists := l.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}

	user := u.user
	return &user, nil
}
