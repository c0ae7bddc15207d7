package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"realtycrm/api/internal/auth"
	"realtycrm/api/internal/store"
)

type resetRecord struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// mockIdentityStore is an in-memory IdentityStore.
type mockIdentityStore struct {
	byEmail  map[string]store.Identity
	signedIn map[string]time.Time
	resets   map[string]resetRecord
}

func newMockIdentityStore() *mockIdentityStore {
	return &mockIdentityStore{
		byEmail:  make(map[string]store.Identity),
		signedIn: make(map[string]time.Time),
		resets:   make(map[string]resetRecord),
	}
}

func (m *mockIdentityStore) add(identity store.Identity) {
	m.byEmail[identity.Email] = identity
}

func (m *mockIdentityStore) GetIdentityByEmail(ctx context.Context, email string) (store.Identity, error) {
	if identity, ok := m.byEmail[email]; ok {
		return identity, nil
	}
	return store.Identity{}, store.ErrNotFound
}

func (m *mockIdentityStore) MarkSignedIn(ctx context.Context, userID string, at time.Time) error {
	m.signedIn[userID] = at
	return nil
}

func (m *mockIdentityStore) CreatePasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.resets[tokenHash] = resetRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockIdentityStore) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	reset, ok := m.resets[tokenHash]
	if !ok || reset.used || !now.Before(reset.expiresAt) {
		return "", store.ErrNotFound
	}
	reset.used = true
	m.resets[tokenHash] = reset
	for email, identity := range m.byEmail {
		if identity.ID == reset.userID {
			identity.PasswordHash = passwordHash
			m.byEmail[email] = identity
		}
	}
	return reset.userID, nil
}

func TestNewIdentity(t *testing.T) {
	identity, err := NewIdentity("  Owner@Example.com ", "Owner", "password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Email != "owner@example.com" {
		t.Errorf("expected normalized email, got %s", identity.Email)
	}
	if identity.ID == "" || identity.PasswordHash == "" || identity.PasswordHash == "password123" {
		t.Errorf("identity not populated: %+v", identity)
	}

	if _, err := NewIdentity("a@example.com", "A", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := NewIdentity("", "A", "password123"); !errors.Is(err, ErrMissingFields) {
		t.Errorf("expected ErrMissingFields, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockIdentityStore()
	svc := NewService(mockStore, time.Hour)

	identity, err := NewIdentity("test@example.com", "Test User", "password123")
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	mockStore.add(identity)

	t.Run("successful sign in", func(t *testing.T) {
		got, err := svc.SignIn(ctx, SignInRequest{Email: "TEST@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != identity.ID {
			t.Errorf("expected %s, got %s", identity.ID, got.ID)
		}
		if _, ok := mockStore.signedIn[identity.ID]; !ok {
			t.Error("expected sign-in to be recorded")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrongpassword"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "password123"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{}); !errors.Is(err, ErrMissingFields) {
			t.Errorf("expected ErrMissingFields, got %v", err)
		}
	})
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockIdentityStore()
	svc := NewService(mockStore, time.Hour)

	identity, _ := NewIdentity("test@example.com", "Test User", "password123")
	mockStore.add(identity)

	token, got, err := svc.RequestPasswordReset(ctx, "test@example.com")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if token == "" || got.ID != identity.ID {
		t.Fatalf("expected token for %s, got %q for %s", identity.ID, token, got.ID)
	}
	if _, stored := mockStore.resets[token]; stored {
		t.Fatal("raw token must not be stored")
	}

	userID, err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword456"})
	if err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if userID != identity.ID {
		t.Errorf("expected %s, got %s", identity.ID, userID)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "newpassword456"}); err != nil {
		t.Errorf("sign in with new password failed: %v", err)
	}

	if _, err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "anotherpass789"}); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("expected reused token to fail, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc := NewService(newMockIdentityStore(), time.Hour)
	token, _, err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil || token != "" {
		t.Fatalf("expected silent no-op, got %q (%v)", token, err)
	}
}

func TestResetPasswordValidation(t *testing.T) {
	svc := NewService(newMockIdentityStore(), time.Hour)
	ctx := context.Background()

	if _, err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "abc", NewPassword: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "unknown", NewPassword: "password123"}); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("expected ErrInvalidResetToken, got %v", err)
	}
	if _, err := svc.ResetPassword(ctx, ResetPasswordRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestNewInvitation(t *testing.T) {
	svc := NewService(newMockIdentityStore(), time.Hour)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	inv, err := svc.NewInvitation("New@Agent.com", "New Agent", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("new invitation: %v", err)
	}
	if inv.Identity.Email != "new@agent.com" {
		t.Errorf("expected normalized email, got %s", inv.Identity.Email)
	}
	if inv.TokenHash != auth.HashToken(inv.Token) {
		t.Error("token hash mismatch")
	}
	if !inv.ExpiresAt.Equal(fixed.Add(7 * 24 * time.Hour)) {
		t.Errorf("unexpected expiry %v", inv.ExpiresAt)
	}
	if inv.Identity.PasswordHash == "" {
		t.Error("expected an unusable password hash")
	}
}
