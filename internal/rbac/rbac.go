package rbac

import (
	"errors"
	"strings"
)

type Role string
type Action string

const (
	RoleSales      Role = "sales"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionInviteRole    Action = "invite_role"
	ActionReassignRole  Action = "reassign_role"
	ActionRemoveMember  Action = "remove_member"
	ActionManageCompany Action = "manage_company"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidRole = errors.New("invalid role")
	// ErrTargetIsSuperAdmin is returned when a reassignment or removal
	// targets the company's super_admin.
	ErrTargetIsSuperAdmin = errors.New("target is super_admin")
)

var rank = map[Role]int{
	RoleSales:      1,
	RoleManager:    2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Roles lists every role from lowest to highest.
func Roles() []Role {
	return []Role{RoleSales, RoleManager, RoleAdmin, RoleSuperAdmin}
}

func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// Rank returns the position of r in the hierarchy; unknown roles rank 0.
func (r Role) Rank() int {
	return rank[r]
}

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && r.Rank() > other.Rank()
}

func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

func Parse(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Actor is the authenticated member performing an action.
type Actor struct {
	UserID string
	Role   Role
}

// Target describes what the action is applied to. TargetRole is the role
// being granted (invite/reassign) or the member's current role (reassign/remove).
type Target struct {
	UserID      string
	CurrentRole Role
	NewRole     Role
}

// Authorize decides whether actor may perform action. It returns nil when
// allowed, ErrTargetIsSuperAdmin when the target is the immutable top role,
// and ErrForbidden otherwise. Tenant matching is the caller's responsibility.
func Authorize(actor Actor, action Action, target Target) error {
	if !actor.Role.Valid() {
		return ErrForbidden
	}

	switch action {
	case ActionRead, ActionCreate, ActionUpdate:
		return nil
	case ActionDelete:
		if actor.Role.AtLeast(RoleManager) {
			return nil
		}
		return ErrForbidden
	case ActionManageCompany:
		if actor.Role == RoleSuperAdmin {
			return nil
		}
		return ErrForbidden
	case ActionInviteRole:
		return canAssign(actor.Role, target.NewRole)
	case ActionReassignRole:
		if target.CurrentRole == RoleSuperAdmin {
			return ErrTargetIsSuperAdmin
		}
		if target.UserID != "" && target.UserID == actor.UserID {
			return ErrForbidden
		}
		if !actor.Role.Outranks(target.CurrentRole) {
			return ErrForbidden
		}
		return canAssign(actor.Role, target.NewRole)
	case ActionRemoveMember:
		if target.CurrentRole == RoleSuperAdmin {
			return ErrTargetIsSuperAdmin
		}
		if target.UserID != "" && target.UserID == actor.UserID {
			return ErrForbidden
		}
		if !actor.Role.AtLeast(RoleAdmin) || !actor.Role.Outranks(target.CurrentRole) {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

// canAssign enforces the grant rules: strictly outrank the granted role, and
// admin or above may only be granted by a super_admin.
func canAssign(actor, granted Role) error {
	if !granted.Valid() {
		return ErrInvalidRole
	}
	if granted == RoleSuperAdmin {
		return ErrForbidden
	}
	if !actor.Outranks(granted) {
		return ErrForbidden
	}
	if granted.AtLeast(RoleAdmin) && actor != RoleSuperAdmin {
		return ErrForbidden
	}
	return nil
}
