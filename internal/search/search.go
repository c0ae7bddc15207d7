package search

import (
	"context"
	"strings"

	"realtycrm/api/internal/store"
)

const defaultLimit = 50

// LeadRecord is the data we index for a lead.
type LeadRecord struct {
	ID           string   `json:"id"`
	CompanyID    string   `json:"companyId"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	Email        string   `json:"email"`
	Location     string   `json:"location"`
	PropertyType string   `json:"propertyType"`
	Source       string   `json:"source"`
	Stage        string   `json:"stage"`
	Tags         []string `json:"tags"`
}

// RecordFromLead flattens a stored lead into its index document.
func RecordFromLead(l store.Lead) LeadRecord {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return LeadRecord{
		ID:           l.ID,
		CompanyID:    l.CompanyID,
		Name:         l.Name,
		Phone:        l.Phone,
		Email:        deref(l.Email),
		Location:     deref(l.Location),
		PropertyType: deref(l.PropertyType),
		Source:       deref(l.Source),
		Stage:        l.Stage,
		Tags:         tags,
	}
}

// Query describes a lead search. CompanyID is mandatory; results never
// cross tenants.
type Query struct {
	CompanyID string
	Text      string
	Limit     int
}

func (q Query) normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = defaultLimit
	}
	return q
}

// Searcher returns the ids of matching leads, best match first.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]string, error)
	Healthy() bool
}

// Indexer can push leads into a search index.
type Indexer interface {
	IndexLeads(records []LeadRecord) error
	DeleteLead(id string) error
}

// Engine is a search backend that maintains its own index.
type Engine interface {
	Searcher
	Indexer
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
