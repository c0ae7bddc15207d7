package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/email"
	"realtycrm/api/internal/objectstore"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/store"
	"realtycrm/api/internal/validate"
)

func (s *Service) ListTeam(ctx context.Context, caller Caller) ([]store.TeamMember, error) {
	return s.store.ListTeam(ctx, caller.CompanyID)
}

type InviteInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

type InvitationResult struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InviteMember provisions an identity, profile and pending role for a new
// team member and mails them a link to set their password.
func (s *Service) InviteMember(ctx context.Context, caller Caller, in InviteInput) (InvitationResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return InvitationResult{}, err
	}
	role, err := rbac.Parse(in.Role)
	if err != nil {
		return InvitationResult{}, errInvalidEnum("role", rbac.Roles())
	}
	if err := s.authorize(caller, rbac.ActionInviteRole, rbac.Target{NewRole: role}); err != nil {
		return InvitationResult{}, err
	}

	exists, err := s.store.ProfileEmailExists(ctx, in.Email)
	if err != nil {
		return InvitationResult{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return InvitationResult{}, errDuplicateEmail()
	}

	invitation, err := s.passwords.NewInvitation(in.Email, in.Name, invitationTTL)
	if err != nil {
		return InvitationResult{}, err
	}
	now := s.now().UTC()
	companyID := caller.CompanyID
	profile := store.Profile{
		ID:        s.newID(),
		UserID:    invitation.Identity.ID,
		CompanyID: &companyID,
		Name:      in.Name,
		Email:     in.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	assignment := store.RoleAssignment{
		ID:        s.newID(),
		UserID:    invitation.Identity.ID,
		CompanyID: companyID,
		Role:      string(role),
		Status:    store.RoleStatusPending,
		CreatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, invitation.Identity, profile, assignment, invitation.TokenHash, invitation.ExpiresAt); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return InvitationResult{}, errDuplicateEmail()
		}
		return InvitationResult{}, fmt.Errorf("create invitation: %w", err)
	}

	s.sendInvitation(ctx, caller, in, role, invitation.Token, invitation.ExpiresAt)
	s.log.WithField("company_id", companyID).WithField("invited_by", caller.UserID).WithField("role", role).Info("member invited")

	return InvitationResult{
		UserID:    invitation.Identity.ID,
		Name:      in.Name,
		Email:     in.Email,
		Role:      role,
		Status:    store.RoleStatusPending,
		ExpiresAt: invitation.ExpiresAt,
	}, nil
}

func (s *Service) sendInvitation(ctx context.Context, caller Caller, in InviteInput, role rbac.Role, token string, expiresAt time.Time) {
	if s.mailer == nil {
		return
	}
	companyName := ""
	if company, err := s.store.GetCompany(ctx, caller.CompanyID); err == nil {
		companyName = company.Name
	}
	acceptURL := s.link("/set-password?token=" + url.QueryEscape(token))
	err := s.mailer.SendInvitation(in.Email, in.Name, companyName, string(role), caller.Name, acceptURL, expiresAt)
	switch {
	case errors.Is(err, email.ErrNotConfigured):
		s.log.WithFields(logrus.Fields{"email": in.Email, "link": acceptURL}).Info("email disabled, invitation link not sent")
	case err != nil:
		s.log.WithError(err).WithField("email", in.Email).Warn("send invitation email")
	}
}

// ReassignRole changes a member's role within the caller's company.
func (s *Service) ReassignRole(ctx context.Context, caller Caller, userID, newRole string) (store.RoleAssignment, error) {
	role, err := rbac.Parse(newRole)
	if err != nil {
		return store.RoleAssignment{}, errInvalidEnum("role", rbac.Roles())
	}
	// A super_admin target is rejected before any grant rule applies.
	current, err := s.store.GetMemberRole(ctx, caller.CompanyID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.RoleAssignment{}, errNotFound("Member")
	}
	if err != nil {
		return store.RoleAssignment{}, fmt.Errorf("get member role: %w", err)
	}
	if err := s.authorize(caller, rbac.ActionReassignRole, rbac.Target{
		UserID:      userID,
		CurrentRole: rbac.Role(current.Role),
		NewRole:     role,
	}); err != nil {
		return store.RoleAssignment{}, err
	}

	if err := s.store.UpdateMemberRole(ctx, caller.CompanyID, userID, string(role)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.RoleAssignment{}, errNotFound("Member")
		}
		return store.RoleAssignment{}, fmt.Errorf("update member role: %w", err)
	}
	s.invalidateCaller(ctx, userID)
	s.notify(ctx, caller.CompanyID, userID, "Your role changed", fmt.Sprintf("%s changed your role to %s", caller.Name, role), "")

	current.Role = string(role)
	return current, nil
}

// RemoveMember detaches a member from the company. Their profile survives
// with no company.
func (s *Service) RemoveMember(ctx context.Context, caller Caller, userID string) error {
	if err := s.authorize(caller, rbac.ActionRemoveMember, rbac.Target{UserID: userID}); err != nil {
		return err
	}
	current, err := s.store.GetMemberRole(ctx, caller.CompanyID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return errNotFound("Member")
	}
	if err != nil {
		return fmt.Errorf("get member role: %w", err)
	}
	if err := s.authorize(caller, rbac.ActionRemoveMember, rbac.Target{
		UserID:      userID,
		CurrentRole: rbac.Role(current.Role),
	}); err != nil {
		return err
	}

	if err := s.store.RemoveMember(ctx, caller.CompanyID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("Member")
		}
		return fmt.Errorf("remove member: %w", err)
	}
	s.invalidateCaller(ctx, userID)
	s.log.WithField("company_id", caller.CompanyID).WithField("user_id", userID).Info("member removed")
	return nil
}

func (s *Service) GetCompany(ctx context.Context, caller Caller) (store.Company, error) {
	return s.store.GetCompany(ctx, caller.CompanyID)
}

type CompanyPatch struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type companyFields struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func (s *Service) UpdateCompany(ctx context.Context, caller Caller, patch CompanyPatch) (store.Company, error) {
	if err := s.authorize(caller, rbac.ActionManageCompany, rbac.Target{}); err != nil {
		return store.Company{}, err
	}
	company, err := s.store.GetCompany(ctx, caller.CompanyID)
	if err != nil {
		return store.Company{}, err
	}
	if patch.Name != nil {
		company.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		company.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Phone != nil {
		company.Phone = trimmed(patch.Phone)
	}
	if patch.Address != nil {
		company.Address = trimmed(patch.Address)
	}
	if err := validate.Struct(companyFields{Name: company.Name, Email: company.Email}); err != nil {
		return store.Company{}, err
	}
	return s.store.UpdateCompany(ctx, company)
}

// UploadLogo stores data as the company logo and records its URL.
func (s *Service) UploadLogo(ctx context.Context, caller Caller, data []byte) (store.Company, error) {
	if err := s.authorize(caller, rbac.ActionManageCompany, rbac.Target{}); err != nil {
		return store.Company{}, err
	}
	if s.logos == nil {
		return store.Company{}, errStorageUnavailable()
	}
	if _, _, err := objectstore.Sniff(data); err != nil {
		return store.Company{}, err
	}
	logoURL, err := s.logos.Upload(ctx, caller.CompanyID, data)
	if err != nil {
		return store.Company{}, fmt.Errorf("upload logo: %w", err)
	}
	return s.store.SetCompanyLogo(ctx, caller.CompanyID, logoURL)
}
