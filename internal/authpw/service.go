// Package authpw provides email/password identities, sign-in and the
// single-use tokens behind invitations and password resets.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"realtycrm/api/internal/auth"
	"realtycrm/api/internal/store"
)

const MinPasswordLength = 8

var (
	ErrMissingFields      = errors.New("email and password are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// IdentityStore is the persistence the service needs.
type IdentityStore interface {
	GetIdentityByEmail(ctx context.Context, email string) (store.Identity, error)
	MarkSignedIn(ctx context.Context, userID string, at time.Time) error
	CreatePasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
}

type Service struct {
	store    IdentityStore
	resetTTL time.Duration
	now      func() time.Time
}

func NewService(store IdentityStore, resetTTL time.Duration) *Service {
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	return &Service{
		store:    store,
		resetTTL: resetTTL,
		now:      time.Now,
	}
}

// HashPassword enforces the minimum length and returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// NewIdentity builds a password-bearing identity ready to be stored.
func NewIdentity(email, name, password string) (store.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return store.Identity{}, ErrMissingFields
	}
	hash, err := HashPassword(password)
	if err != nil {
		return store.Identity{}, err
	}
	return store.Identity{ID: uuid.NewString(), Email: email, Name: strings.TrimSpace(name), PasswordHash: hash}, nil
}

// Invitation is an identity whose password nobody knows yet, plus the
// token the invitee uses to set one.
type Invitation struct {
	Identity  store.Identity
	Token     string
	TokenHash string
	ExpiresAt time.Time
}

// NewInvitation creates an identity with an unguessable password and a set
// password token valid for ttl.
func (s *Service) NewInvitation(email, name string, ttl time.Duration) (Invitation, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Invitation{}, ErrMissingFields
	}
	secret, err := generateToken()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Invitation{}, fmt.Errorf("hash password: %w", err)
	}
	token, err := generateToken()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invite token: %w", err)
	}
	return Invitation{
		Identity:  store.Identity{ID: uuid.NewString(), Email: email, Name: strings.TrimSpace(name), PasswordHash: string(hash)},
		Token:     token,
		TokenHash: auth.HashToken(token),
		ExpiresAt: s.now().Add(ttl),
	}, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn checks credentials and marks the identity signed in, which also
// activates pending role tuples.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Identity, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.Identity{}, ErrMissingFields
	}

	identity, err := s.store.GetIdentityByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		return store.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return store.Identity{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.MarkSignedIn(ctx, identity.ID, now); err != nil {
		return store.Identity{}, fmt.Errorf("mark signed in: %w", err)
	}
	identity.LastSignInAt = &now
	return identity, nil
}

// RequestPasswordReset returns a reset token for email. Unknown emails
// return an empty token and no error.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.Identity, error) {
	identity, err := s.store.GetIdentityByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", store.Identity{}, nil
	}
	if err != nil {
		return "", store.Identity{}, err
	}

	token, err := generateToken()
	if err != nil {
		return "", store.Identity{}, err
	}
	if err := s.store.CreatePasswordReset(ctx, identity.ID, auth.HashToken(token), s.now().Add(s.resetTTL)); err != nil {
		return "", store.Identity{}, fmt.Errorf("create password reset: %w", err)
	}
	return token, identity, nil
}

type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword consumes a reset or invitation token and sets the password.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	if req.Token == "" || req.NewPassword == "" {
		return "", ErrMissingFields
	}
	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return "", err
	}

	userID, err := s.store.ConsumePasswordReset(ctx, auth.HashToken(req.Token), hash, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidResetToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
