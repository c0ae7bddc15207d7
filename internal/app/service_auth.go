package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/authpw"
	"realtycrm/api/internal/email"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/store"
	"realtycrm/api/internal/validate"
)

type RegisterCompanyInput struct {
	Company struct {
		Name    string  `json:"name" validate:"required"`
		Email   string  `json:"email" validate:"required,email"`
		Phone   *string `json:"phone"`
		Address *string `json:"address"`
	} `json:"company"`
	Owner struct {
		Name     string  `json:"name" validate:"required"`
		Email    string  `json:"email" validate:"required,email"`
		Phone    *string `json:"phone"`
		Password string  `json:"password" validate:"required,min=8"`
	} `json:"owner"`
}

type RegisterResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Company   store.Company `json:"company"`
	Profile   store.Profile `json:"profile"`
	Role      rbac.Role     `json:"role"`
}

// RegisterCompany creates a company with its founding super_admin. The
// identity, company, profile and role are written in one transaction.
func (s *Service) RegisterCompany(ctx context.Context, in RegisterCompanyInput) (RegisterResult, error) {
	in.Company.Name = strings.TrimSpace(in.Company.Name)
	in.Company.Email = strings.TrimSpace(in.Company.Email)
	in.Owner.Name = strings.TrimSpace(in.Owner.Name)
	in.Owner.Email = strings.ToLower(strings.TrimSpace(in.Owner.Email))
	if err := validate.Struct(in); err != nil {
		return RegisterResult{}, err
	}

	exists, err := s.store.ProfileEmailExists(ctx, in.Owner.Email)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return RegisterResult{}, errDuplicateEmail()
	}

	identity, err := authpw.NewIdentity(in.Owner.Email, in.Owner.Name, in.Owner.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	now := s.now().UTC()
	company := store.Company{
		ID:        s.newID(),
		Name:      in.Company.Name,
		Email:     in.Company.Email,
		Phone:     trimmed(in.Company.Phone),
		Address:   trimmed(in.Company.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	profile := store.Profile{
		ID:        s.newID(),
		UserID:    identity.ID,
		CompanyID: &company.ID,
		Name:      in.Owner.Name,
		Email:     in.Owner.Email,
		Phone:     trimmed(in.Owner.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	role := store.RoleAssignment{
		ID:        s.newID(),
		UserID:    identity.ID,
		CompanyID: company.ID,
		Role:      string(rbac.RoleSuperAdmin),
		Status:    store.RoleStatusActive,
		CreatedAt: now,
	}

	if err := s.store.RegisterCompany(ctx, identity, company, profile, role); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return RegisterResult{}, errDuplicateEmail()
		}
		return RegisterResult{}, fmt.Errorf("register company: %w", err)
	}

	token, expiresAt, err := s.issueToken(identity)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.log.WithField("company_id", company.ID).WithField("user_id", identity.ID).Info("company registered")
	return RegisterResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Company:   company,
		Profile:   profile,
		Role:      rbac.RoleSuperAdmin,
	}, nil
}

type SignInResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	identity, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return SignInResult{}, err
	}
	token, expiresAt, err := s.issueToken(identity)
	if err != nil {
		return SignInResult{}, fmt.Errorf("issue token: %w", err)
	}
	return SignInResult{Token: token, UserID: identity.ID, ExpiresAt: expiresAt}, nil
}

// ForgotPassword mails a reset link when the email is known. It never
// reveals whether it was.
func (s *Service) ForgotPassword(ctx context.Context, address string) error {
	token, identity, err := s.passwords.RequestPasswordReset(ctx, address)
	if err != nil {
		return err
	}
	if token == "" || s.mailer == nil {
		return nil
	}
	resetURL := s.link("/reset-password?token=" + url.QueryEscape(token))
	err = s.mailer.SendPasswordResetEmail(identity.Email, identity.Name, resetURL)
	switch {
	case errors.Is(err, email.ErrNotConfigured):
		s.log.WithFields(logrus.Fields{"user_id": identity.ID, "link": resetURL}).Info("email disabled, reset link not sent")
	case err != nil:
		s.log.WithError(err).WithField("user_id", identity.ID).Warn("send password reset email")
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	userID, err := s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
	if err != nil {
		return "", err
	}
	s.invalidateCaller(ctx, userID)
	return userID, nil
}

type MeResult struct {
	Caller
	Profile store.Profile `json:"profile"`
}

func (s *Service) Me(ctx context.Context, caller Caller) (MeResult, error) {
	profile, err := s.store.GetProfileByUserID(ctx, caller.UserID)
	if err != nil {
		return MeResult{}, err
	}
	return MeResult{Caller: caller, Profile: profile}, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
