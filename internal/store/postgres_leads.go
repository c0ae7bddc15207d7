package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const leadColumns = `id, company_id, name, phone, email, budget, location, property_type, source, stage,
	assigned_to, tags, notes, lead_score, score_reasoning, scored_at, last_contact, created_at,
	COALESCE(created_by::text, ''), updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var (
		lead       Lead
		tags       []byte
		notes      []byte
		assignedTo sql.NullString
	)
	err := row.Scan(
		&lead.ID, &lead.CompanyID, &lead.Name, &lead.Phone, &lead.Email, &lead.Budget, &lead.Location,
		&lead.PropertyType, &lead.Source, &lead.Stage, &assignedTo, &tags, &notes, &lead.LeadScore,
		&lead.ScoreReasoning, &lead.ScoredAt, &lead.LastContact, &lead.CreatedAt, &lead.CreatedBy, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	if assignedTo.Valid {
		lead.AssignedTo = &assignedTo.String
	}
	if lead.Tags, err = decodeStrings(tags); err != nil {
		return Lead{}, fmt.Errorf("decode tags: %w", err)
	}
	if lead.Notes, err = decodeStrings(notes); err != nil {
		return Lead{}, fmt.Errorf("decode notes: %w", err)
	}
	return lead, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, companyID string, filter LeadFilter) ([]Lead, error) {
	clauses := []string{"company_id = $1"}
	args := []any{companyID}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		clauses = append(clauses, fmt.Sprintf("stage = $%d", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to::text = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		clauses = append(clauses, fmt.Sprintf("source = $%d", len(args)))
	}
	if len(filter.IDs) > 0 {
		start := len(args) + 1
		for _, id := range filter.IDs {
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("id::text IN (%s)", placeholders(start, len(filter.IDs))))
	}

	query := `SELECT ` + leadColumns + ` FROM leads WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, companyID, leadID string) (Lead, error) {
	lead, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE company_id=$1 AND id::text=$2`, companyID, leadID))
	if err != nil {
		return Lead{}, mapNoRows(err, "get lead")
	}
	return lead, nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead Lead) (Lead, error) {
	tags, err := encodeStrings(lead.Tags)
	if err != nil {
		return Lead{}, fmt.Errorf("encode tags: %w", err)
	}
	notes, err := encodeStrings(lead.Notes)
	if err != nil {
		return Lead{}, fmt.Errorf("encode notes: %w", err)
	}
	inserted, err := scanLead(s.db.QueryRowContext(ctx, `
		INSERT INTO leads (id, company_id, name, phone, email, budget, location, property_type, source,
			stage, assigned_to, tags, notes, last_contact, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+leadColumns,
		lead.ID, lead.CompanyID, lead.Name, lead.Phone, lead.Email, lead.Budget, lead.Location,
		lead.PropertyType, lead.Source, lead.Stage, lead.AssignedTo, tags, notes, lead.LastContact, lead.CreatedBy,
	))
	if err != nil {
		return Lead{}, mapWriteErr(err, "insert lead")
	}
	return inserted, nil
}

// UpdateLead writes every mutable column of lead in one statement. Stage and
// last_contact therefore always change together.
func (s *PostgresStore) UpdateLead(ctx context.Context, lead Lead) (Lead, error) {
	tags, err := encodeStrings(lead.Tags)
	if err != nil {
		return Lead{}, fmt.Errorf("encode tags: %w", err)
	}
	notes, err := encodeStrings(lead.Notes)
	if err != nil {
		return Lead{}, fmt.Errorf("encode notes: %w", err)
	}
	updated, err := scanLead(s.db.QueryRowContext(ctx, `
		UPDATE leads SET name=$3, phone=$4, email=$5, budget=$6, location=$7, property_type=$8,
			source=$9, stage=$10, assigned_to=$11, tags=$12, notes=$13, last_contact=$14, updated_at=NOW()
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+leadColumns,
		lead.CompanyID, lead.ID, lead.Name, lead.Phone, lead.Email, lead.Budget, lead.Location,
		lead.PropertyType, lead.Source, lead.Stage, lead.AssignedTo, tags, notes, lead.LastContact,
	))
	if err != nil {
		return Lead{}, mapNoRows(err, "update lead")
	}
	return updated, nil
}

func (s *PostgresStore) DeleteLead(ctx context.Context, companyID, leadID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE company_id=$1 AND id::text=$2`, companyID, leadID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return requireAffected(result, "delete lead")
}

// SetLeadScore persists a score. scored_at never moves backwards and always
// advances past the previous value, even when two writes share a clock tick.
func (s *PostgresStore) SetLeadScore(ctx context.Context, companyID, leadID string, score int, reasoning string, at time.Time) (Lead, error) {
	updated, err := scanLead(s.db.QueryRowContext(ctx, `
		UPDATE leads SET lead_score=$3, score_reasoning=$4,
			scored_at=GREATEST($5::timestamptz, COALESCE(scored_at + INTERVAL '1 microsecond', $5::timestamptz)),
			updated_at=NOW()
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+leadColumns,
		companyID, leadID, score, reasoning, at,
	))
	if err != nil {
		return Lead{}, mapNoRows(err, "set lead score")
	}
	return updated, nil
}

// FindLeadsByPhoneDigits matches leads whose phone, stripped to digits,
// equals digits. It is not tenant-scoped: inbound webhooks carry no tenant.
func (s *PostgresStore) FindLeadsByPhoneDigits(ctx context.Context, digits string) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE REGEXP_REPLACE(phone, '\D', '', 'g') = $1
		ORDER BY created_at ASC
	`, digits)
	if err != nil {
		return nil, fmt.Errorf("find leads by phone: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// TouchLeadContact bumps last_contact without touching the stage.
func (s *PostgresStore) TouchLeadContact(ctx context.Context, companyID, leadID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE leads SET last_contact=$3, updated_at=NOW() WHERE company_id=$1 AND id::text=$2
	`, companyID, leadID, at)
	if err != nil {
		return fmt.Errorf("touch lead contact: %w", err)
	}
	return requireAffected(result, "touch lead contact")
}

// LeadStats aggregates the analytics counters for one company. todayStart
// is the start of the current UTC day.
func (s *PostgresStore) LeadStats(ctx context.Context, companyID string, todayStart time.Time) (LeadStats, error) {
	var stats LeadStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE tags ? 'Hot Lead'),
			AVG(lead_score)::float8
		FROM leads WHERE company_id=$1
	`, companyID, todayStart).Scan(&stats.Total, &stats.CreatedToday, &stats.HotLeads, &stats.AverageScore)
	if err != nil {
		return LeadStats{}, fmt.Errorf("lead totals: %w", err)
	}

	if stats.BySource, err = s.countBy(ctx, `
		SELECT COALESCE(NULLIF(source, ''), 'Unknown') AS key, COUNT(*)
		FROM leads WHERE company_id=$1 GROUP BY key ORDER BY COUNT(*) DESC, key ASC
	`, companyID); err != nil {
		return LeadStats{}, fmt.Errorf("leads by source: %w", err)
	}
	if stats.ByStage, err = s.countBy(ctx, `
		SELECT stage, COUNT(*) FROM leads WHERE company_id=$1 GROUP BY stage
	`, companyID); err != nil {
		return LeadStats{}, fmt.Errorf("leads by stage: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM follow_ups WHERE company_id=$1 AND status='pending'),
			(SELECT COUNT(*) FROM site_visits WHERE company_id=$1 AND status='scheduled')
	`, companyID).Scan(&stats.PendingFollowUp, &stats.ScheduledVisits)
	if err != nil {
		return LeadStats{}, fmt.Errorf("activity totals: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) countBy(ctx context.Context, query string, args ...any) ([]CountByKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]CountByKey, 0)
	for rows.Next() {
		var c CountByKey
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SampleProperties returns up to limit recent properties of the company for
// budget comparison.
func (s *PostgresStore) SampleProperties(ctx context.Context, companyID string, limit int) ([]PropertySample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT price, location, bhk FROM properties
		WHERE company_id=$1 ORDER BY created_at DESC LIMIT $2
	`, companyID, limitOrDefault(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("sample properties: %w", err)
	}
	defer rows.Close()

	samples := make([]PropertySample, 0)
	for rows.Next() {
		var p PropertySample
		if err := rows.Scan(&p.Price, &p.Location, &p.BHK); err != nil {
			return nil, fmt.Errorf("scan property sample: %w", err)
		}
		samples = append(samples, p)
	}
	return samples, rows.Err()
}
