package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Postgres implements Searcher with case-insensitive substring matching. It
// needs no index maintenance and serves as the fallback.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Healthy always returns true; if Postgres is down the whole API is down.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]string, error) {
	q = q.normalized()
	if q.Text == "" {
		return []string{}, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text FROM leads
		WHERE company_id = $1 AND (
			name ILIKE $2 ESCAPE '\' OR
			phone ILIKE $2 ESCAPE '\' OR
			COALESCE(email, '') ILIKE $2 ESCAPE '\' OR
			COALESCE(location, '') ILIKE $2 ESCAPE '\' OR
			COALESCE(property_type, '') ILIKE $2 ESCAPE '\' OR
			COALESCE(source, '') ILIKE $2 ESCAPE '\' OR
			tags::text ILIKE $2 ESCAPE '\'
		)
		ORDER BY created_at DESC
		LIMIT $3
	`, q.CompanyID, likePattern(q.Text), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres lead search: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadAllRecords returns every lead as an index document for full reindexing.
func (p *Postgres) LoadAllRecords(ctx context.Context) ([]LeadRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, company_id::text, name, phone, COALESCE(email, ''), COALESCE(location, ''),
			COALESCE(property_type, ''), COALESCE(source, ''), stage, tags
		FROM leads
	`)
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	defer rows.Close()

	records := make([]LeadRecord, 0)
	for rows.Next() {
		var (
			r    LeadRecord
			tags []byte
		)
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Phone, &r.Email, &r.Location,
			&r.PropertyType, &r.Source, &r.Stage, &tags); err != nil {
			return nil, fmt.Errorf("scan lead record: %w", err)
		}
		r.Tags = []string{}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &r.Tags); err != nil {
				return nil, fmt.Errorf("decode lead tags: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead records: %w", err)
	}
	return records, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}
