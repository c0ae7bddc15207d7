package store

import (
	"context"
	"fmt"
	"strings"
)

const propertyColumns = `id, company_id, title, location, bhk, area, price, description, status,
	COALESCE(created_by::text, ''), created_at, updated_at`

func scanProperty(row rowScanner) (Property, error) {
	var p Property
	err := row.Scan(&p.ID, &p.CompanyID, &p.Title, &p.Location, &p.BHK, &p.Area, &p.Price,
		&p.Description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) ListProperties(ctx context.Context, companyID string, filter RecordFilter) ([]Property, error) {
	args := []any{companyID}
	where := "company_id = $1"
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += " AND status = $2"
	}
	args = append(args, limitOrDefault(filter.Limit, 200))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM properties WHERE %s ORDER BY created_at DESC LIMIT $%d`, propertyColumns, where, len(args),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	out := make([]Property, 0)
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetProperty(ctx context.Context, companyID, id string) (Property, error) {
	p, err := scanProperty(s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE company_id=$1 AND id::text=$2`, companyID, id))
	if err != nil {
		return Property{}, mapNoRows(err, "get property")
	}
	return p, nil
}

func (s *PostgresStore) InsertProperty(ctx context.Context, p Property) (Property, error) {
	out, err := scanProperty(s.db.QueryRowContext(ctx, `
		INSERT INTO properties (id, company_id, title, location, bhk, area, price, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+propertyColumns,
		p.ID, p.CompanyID, p.Title, p.Location, p.BHK, p.Area, p.Price, p.Description, p.Status, p.CreatedBy,
	))
	if err != nil {
		return Property{}, mapWriteErr(err, "insert property")
	}
	return out, nil
}

func (s *PostgresStore) UpdateProperty(ctx context.Context, p Property) (Property, error) {
	out, err := scanProperty(s.db.QueryRowContext(ctx, `
		UPDATE properties SET title=$3, location=$4, bhk=$5, area=$6, price=$7, description=$8, status=$9, updated_at=NOW()
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+propertyColumns,
		p.CompanyID, p.ID, p.Title, p.Location, p.BHK, p.Area, p.Price, p.Description, p.Status,
	))
	if err != nil {
		return Property{}, mapNoRows(err, "update property")
	}
	return out, nil
}

func (s *PostgresStore) DeleteProperty(ctx context.Context, companyID, id string) error {
	return s.deleteScoped(ctx, "properties", companyID, id)
}

const siteVisitColumns = `id, company_id, lead_id, property_id, visit_date, visit_time, status, feedback,
	COALESCE(created_by::text, ''), created_at, updated_at`

func scanSiteVisit(row rowScanner) (SiteVisit, error) {
	var v SiteVisit
	err := row.Scan(&v.ID, &v.CompanyID, &v.LeadID, &v.PropertyID, &v.VisitDate, &v.VisitTime,
		&v.Status, &v.Feedback, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s *PostgresStore) ListSiteVisits(ctx context.Context, companyID string, filter RecordFilter) ([]SiteVisit, error) {
	where, args := recordWhere(companyID, filter)
	args = append(args, limitOrDefault(filter.Limit, 200))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM site_visits WHERE %s ORDER BY visit_date DESC, visit_time DESC LIMIT $%d`, siteVisitColumns, where, len(args),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("list site visits: %w", err)
	}
	defer rows.Close()

	out := make([]SiteVisit, 0)
	for rows.Next() {
		v, err := scanSiteVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSiteVisit(ctx context.Context, companyID, id string) (SiteVisit, error) {
	v, err := scanSiteVisit(s.db.QueryRowContext(ctx,
		`SELECT `+siteVisitColumns+` FROM site_visits WHERE company_id=$1 AND id::text=$2`, companyID, id))
	if err != nil {
		return SiteVisit{}, mapNoRows(err, "get site visit")
	}
	return v, nil
}

func (s *PostgresStore) InsertSiteVisit(ctx context.Context, v SiteVisit) (SiteVisit, error) {
	out, err := scanSiteVisit(s.db.QueryRowContext(ctx, `
		INSERT INTO site_visits (id, company_id, lead_id, property_id, visit_date, visit_time, status, feedback, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+siteVisitColumns,
		v.ID, v.CompanyID, v.LeadID, v.PropertyID, v.VisitDate, v.VisitTime, v.Status, v.Feedback, v.CreatedBy,
	))
	if err != nil {
		return SiteVisit{}, mapWriteErr(err, "insert site visit")
	}
	return out, nil
}

func (s *PostgresStore) UpdateSiteVisit(ctx context.Context, v SiteVisit) (SiteVisit, error) {
	out, err := scanSiteVisit(s.db.QueryRowContext(ctx, `
		UPDATE site_visits SET visit_date=$3, visit_time=$4, status=$5, feedback=$6, updated_at=NOW()
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+siteVisitColumns,
		v.CompanyID, v.ID, v.VisitDate, v.VisitTime, v.Status, v.Feedback,
	))
	if err != nil {
		return SiteVisit{}, mapNoRows(err, "update site visit")
	}
	return out, nil
}

func (s *PostgresStore) DeleteSiteVisit(ctx context.Context, companyID, id string) error {
	return s.deleteScoped(ctx, "site_visits", companyID, id)
}

const followUpColumns = `id, company_id, lead_id, type, follow_up_date, follow_up_time, notes, status,
	COALESCE(created_by::text, ''), created_at, updated_at`

func scanFollowUp(row rowScanner) (FollowUp, error) {
	var f FollowUp
	err := row.Scan(&f.ID, &f.CompanyID, &f.LeadID, &f.Type, &f.FollowUpDate, &f.FollowUpTime,
		&f.Notes, &f.Status, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *PostgresStore) ListFollowUps(ctx context.Context, companyID string, filter RecordFilter) ([]FollowUp, error) {
	where, args := recordWhere(companyID, filter)
	args = append(args, limitOrDefault(filter.Limit, 200))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM follow_ups WHERE %s ORDER BY follow_up_date ASC, follow_up_time ASC LIMIT $%d`, followUpColumns, where, len(args),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("list follow ups: %w", err)
	}
	defer rows.Close()

	out := make([]FollowUp, 0)
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan follow up: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetFollowUp(ctx context.Context, companyID, id string) (FollowUp, error) {
	f, err := scanFollowUp(s.db.QueryRowContext(ctx,
		`SELECT `+followUpColumns+` FROM follow_ups WHERE company_id=$1 AND id::text=$2`, companyID, id))
	if err != nil {
		return FollowUp{}, mapNoRows(err, "get follow up")
	}
	return f, nil
}

func (s *PostgresStore) InsertFollowUp(ctx context.Context, f FollowUp) (FollowUp, error) {
	out, err := scanFollowUp(s.db.QueryRowContext(ctx, `
		INSERT INTO follow_ups (id, company_id, lead_id, type, follow_up_date, follow_up_time, notes, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+followUpColumns,
		f.ID, f.CompanyID, f.LeadID, f.Type, f.FollowUpDate, f.FollowUpTime, f.Notes, f.Status, f.CreatedBy,
	))
	if err != nil {
		return FollowUp{}, mapWriteErr(err, "insert follow up")
	}
	return out, nil
}

func (s *PostgresStore) UpdateFollowUp(ctx context.Context, f FollowUp) (FollowUp, error) {
	out, err := scanFollowUp(s.db.QueryRowContext(ctx, `
		UPDATE follow_ups SET type=$3, follow_up_date=$4, follow_up_time=$5, notes=$6, status=$7, updated_at=NOW()
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+followUpColumns,
		f.CompanyID, f.ID, f.Type, f.FollowUpDate, f.FollowUpTime, f.Notes, f.Status,
	))
	if err != nil {
		return FollowUp{}, mapNoRows(err, "update follow up")
	}
	return out, nil
}

func (s *PostgresStore) DeleteFollowUp(ctx context.Context, companyID, id string) error {
	return s.deleteScoped(ctx, "follow_ups", companyID, id)
}

const workflowColumns = `id, company_id, name, trigger_event, action, status, runs_count, last_run,
	COALESCE(created_by::text, ''), created_at, updated_at`

func scanWorkflow(row rowScanner) (Workflow, error) {
	var w Workflow
	err := row.Scan(&w.ID, &w.CompanyID, &w.Name, &w.TriggerEvent, &w.Action, &w.Status,
		&w.RunsCount, &w.LastRun, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, companyID string) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE company_id=$1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	out := make([]Workflow, 0)
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, companyID, id string) (Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE company_id=$1 AND id::text=$2`, companyID, id))
	if err != nil {
		return Workflow{}, mapNoRows(err, "get workflow")
	}
	return w, nil
}

func (s *PostgresStore) InsertWorkflow(ctx context.Context, w Workflow) (Workflow, error) {
	out, err := scanWorkflow(s.db.QueryRowContext(ctx, `
		INSERT INTO workflows (id, company_id, name, trigger_event, action, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+workflowColumns,
		w.ID, w.CompanyID, w.Name, w.TriggerEvent, w.Action, w.Status, w.CreatedBy,
	))
	if err != nil {
		return Workflow{}, mapWriteErr(err, "insert workflow")
	}
	return out, nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, w Workflow) (Workflow, error) {
	out, err := scanWorkflow(s.db.QueryRowContext(ctx, `
		UPDATE workflows SET name=$3, trigger_event=$4, action=$5, status=$6, updated_at=NOW()
		WHERE company_id=$1 AND id::text=$2
		RETURNING `+workflowColumns,
		w.CompanyID, w.ID, w.Name, w.TriggerEvent, w.Action, w.Status,
	))
	if err != nil {
		return Workflow{}, mapNoRows(err, "update workflow")
	}
	return out, nil
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, companyID, id string) error {
	return s.deleteScoped(ctx, "workflows", companyID, id)
}

func recordWhere(companyID string, filter RecordFilter) (string, []any) {
	clauses := []string{"company_id = $1"}
	args := []any{companyID}
	if filter.LeadID != "" {
		args = append(args, filter.LeadID)
		clauses = append(clauses, fmt.Sprintf("lead_id::text = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// deleteScoped removes one row by id within the company. table is always a
// package constant, never caller input.
func (s *PostgresStore) deleteScoped(ctx context.Context, table, companyID, id string) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE company_id=$1 AND id::text=$2`, table), companyID, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return requireAffected(result, "delete "+table)
}
