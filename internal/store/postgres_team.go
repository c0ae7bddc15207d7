package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RegisterCompany creates the founding identity, the company, the owner's
// profile and the super_admin role tuple in one transaction.
func (s *PostgresStore) RegisterCompany(ctx context.Context, identity Identity, company Company, profile Profile, role RoleAssignment) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := insertIdentity(ctx, tx, identity); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO companies (id, name, email, phone, address)
			VALUES ($1, $2, $3, $4, $5)
		`, company.ID, company.Name, company.Email, company.Phone, company.Address); err != nil {
			return mapWriteErr(err, "insert company")
		}
		if err := insertProfile(ctx, tx, profile); err != nil {
			return err
		}
		return insertRole(ctx, tx, role)
	})
}

// CreateInvitation provisions the invitee's identity, binds a profile to the
// company, records a pending role tuple and stores the password-set token.
func (s *PostgresStore) CreateInvitation(ctx context.Context, identity Identity, profile Profile, role RoleAssignment, tokenHash string, tokenExpires time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := insertIdentity(ctx, tx, identity); err != nil {
			return err
		}
		if err := insertProfile(ctx, tx, profile); err != nil {
			return err
		}
		if err := insertRole(ctx, tx, role); err != nil {
			return err
		}
		return insertPasswordReset(ctx, tx, identity.ID, tokenHash, tokenExpires)
	})
}

func insertIdentity(ctx context.Context, q queryer, identity Identity) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO identities (id, email, name, password_hash)
		VALUES ($1, LOWER($2), $3, $4)
	`, identity.ID, identity.Email, identity.Name, identity.PasswordHash)
	if err != nil {
		return mapWriteErr(err, "insert identity")
	}
	return nil
}

func insertProfile(ctx context.Context, q queryer, profile Profile) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO profiles (id, user_id, company_id, name, email, phone)
		VALUES ($1, $2, $3, $4, LOWER($5), $6)
	`, profile.ID, profile.UserID, profile.CompanyID, profile.Name, profile.Email, profile.Phone)
	if err != nil {
		return mapWriteErr(err, "insert profile")
	}
	return nil
}

func insertRole(ctx context.Context, q queryer, role RoleAssignment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, company_id, role, status)
		VALUES ($1, $2, $3, $4, $5)
	`, role.ID, role.UserID, role.CompanyID, role.Role, role.Status)
	if err != nil {
		return mapWriteErr(err, "insert role")
	}
	return nil
}

func insertPasswordReset(ctx context.Context, q queryer, userID, tokenHash string, expiresAt time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO password_resets (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return mapWriteErr(err, "insert password reset")
	}
	return nil
}

func (s *PostgresStore) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	var identity Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, last_sign_in_at, created_at
		FROM identities WHERE LOWER(email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&identity.ID, &identity.Email, &identity.Name, &identity.PasswordHash, &identity.LastSignInAt, &identity.CreatedAt)
	if err != nil {
		return Identity{}, mapNoRows(err, "get identity")
	}
	return identity, nil
}

// MarkSignedIn stamps the sign-in time and activates any pending role tuples
// of the identity.
func (s *PostgresStore) MarkSignedIn(ctx context.Context, userID string, at time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE identities SET last_sign_in_at=$2 WHERE id=$1`, userID, at); err != nil {
			return fmt.Errorf("mark signed in: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE user_roles SET status='active' WHERE user_id=$1 AND status='pending'`, userID); err != nil {
			return fmt.Errorf("activate roles: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return insertPasswordReset(ctx, s.db, userID, tokenHash, expiresAt)
}

// ConsumePasswordReset validates an unused, unexpired token, marks it used
// and stores the new password hash. It returns the identity id.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	var userID string
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT user_id FROM password_resets
			WHERE token_hash=$1 AND used_at IS NULL AND expires_at > $2
			FOR UPDATE
		`, tokenHash, now).Scan(&userID)
		if err != nil {
			return mapNoRows(err, "lookup password reset")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE password_resets SET used_at=$2 WHERE token_hash=$1`, tokenHash, now); err != nil {
			return fmt.Errorf("consume password reset: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE identities SET password_hash=$2 WHERE id=$1`, userID, passwordHash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) ProfileEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM profiles WHERE LOWER(email) = LOWER($1))
			OR EXISTS(SELECT 1 FROM identities WHERE LOWER(email) = LOWER($1))
	`, strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check profile email: %w", err)
	}
	return exists, nil
}

// LookupCaller joins the identity's profile with its active role in the
// profile's company. ErrNotFound means the identity has no usable profile.
func (s *PostgresStore) LookupCaller(ctx context.Context, userID string) (CallerRecord, error) {
	var record CallerRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT p.user_id, p.id, p.company_id, ur.role, p.name, p.email
		FROM profiles p
		JOIN user_roles ur ON ur.user_id = p.user_id AND ur.company_id = p.company_id
		WHERE p.user_id = $1 AND p.company_id IS NOT NULL AND ur.status = 'active'
	`, userID).Scan(&record.UserID, &record.ProfileID, &record.CompanyID, &record.Role, &record.Name, &record.Email)
	if err != nil {
		return CallerRecord{}, mapNoRows(err, "lookup caller")
	}
	return record, nil
}

func (s *PostgresStore) GetProfileByUserID(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, company_id, name, email, phone, created_at, updated_at
		FROM profiles WHERE user_id=$1
	`, userID).Scan(&profile.ID, &profile.UserID, &profile.CompanyID, &profile.Name, &profile.Email, &profile.Phone, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return Profile{}, mapNoRows(err, "get profile")
	}
	return profile, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (Company, error) {
	var company Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, address, logo_url, created_at, updated_at
		FROM companies WHERE id=$1
	`, companyID).Scan(&company.ID, &company.Name, &company.Email, &company.Phone, &company.Address, &company.LogoURL, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return Company{}, mapNoRows(err, "get company")
	}
	return company, nil
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, company Company) (Company, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE companies SET name=$2, email=$3, phone=$4, address=$5, updated_at=NOW()
		WHERE id=$1
	`, company.ID, company.Name, company.Email, company.Phone, company.Address)
	if err != nil {
		return Company{}, fmt.Errorf("update company: %w", err)
	}
	if err := requireAffected(result, "update company"); err != nil {
		return Company{}, err
	}
	return s.GetCompany(ctx, company.ID)
}

func (s *PostgresStore) SetCompanyLogo(ctx context.Context, companyID, logoURL string) (Company, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE companies SET logo_url=$2, updated_at=NOW() WHERE id=$1`, companyID, logoURL)
	if err != nil {
		return Company{}, fmt.Errorf("set company logo: %w", err)
	}
	if err := requireAffected(result, "set company logo"); err != nil {
		return Company{}, err
	}
	return s.GetCompany(ctx, companyID)
}

// GetMemberRole returns the role tuple of userID in companyID, pending or active.
func (s *PostgresStore) GetMemberRole(ctx context.Context, companyID, userID string) (RoleAssignment, error) {
	var role RoleAssignment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, company_id, role, status, created_at
		FROM user_roles WHERE company_id=$1 AND user_id::text=$2
	`, companyID, userID).Scan(&role.ID, &role.UserID, &role.CompanyID, &role.Role, &role.Status, &role.CreatedAt)
	if err != nil {
		return RoleAssignment{}, mapNoRows(err, "get member role")
	}
	return role, nil
}

func (s *PostgresStore) UpdateMemberRole(ctx context.Context, companyID, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_roles SET role=$3 WHERE company_id=$1 AND user_id::text=$2 AND role <> 'super_admin'
	`, companyID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return requireAffected(result, "update member role")
}

// RemoveMember deletes the role tuple and detaches the profile from the
// company. The profile itself is kept.
func (s *PostgresStore) RemoveMember(ctx context.Context, companyID, userID string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM user_roles WHERE company_id=$1 AND user_id::text=$2 AND role <> 'super_admin'
		`, companyID, userID)
		if err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		if err := requireAffected(result, "delete role"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles SET company_id=NULL, updated_at=NOW() WHERE user_id::text=$2 AND company_id=$1
		`, companyID, userID); err != nil {
			return fmt.Errorf("detach profile: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) IsMember(ctx context.Context, companyID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_roles WHERE company_id=$1 AND user_id::text=$2)
	`, companyID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListTeam(ctx context.Context, companyID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.company_id, p.name, p.email, p.phone, p.created_at, p.updated_at,
			ur.role, ur.status,
			COUNT(l.id) AS leads_count,
			COUNT(l.id) FILTER (WHERE l.stage = 'closed-won') AS deals_count
		FROM profiles p
		JOIN user_roles ur ON ur.user_id = p.user_id AND ur.company_id = p.company_id
		LEFT JOIN leads l ON l.company_id = p.company_id AND l.assigned_to = p.user_id
		WHERE p.company_id = $1
		GROUP BY p.id, ur.role, ur.status
		ORDER BY p.name ASC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	defer rows.Close()

	members := make([]TeamMember, 0)
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.CompanyID, &m.Name, &m.Email, &m.Phone, &m.CreatedAt, &m.UpdatedAt,
			&m.Role, &m.RoleStatus, &m.LeadsCount, &m.DealsCount,
		); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team: %w", err)
	}
	return members, nil
}

// IsDuplicate reports whether err came from a unique constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
