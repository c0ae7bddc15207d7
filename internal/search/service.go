package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/store"
)

// Service tries the primary engine first and falls back to Postgres.
type Service struct {
	primary  Engine
	fallback Searcher
	log      logrus.FieldLogger
	pending  sync.WaitGroup
}

// NewService creates a search service. primary may be nil when Meilisearch
// is not configured.
func NewService(primary Engine, fallback Searcher, log logrus.FieldLogger) *Service {
	return &Service{primary: primary, fallback: fallback, log: log.WithField("component", "search")}
}

func (s *Service) primaryUp() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search returns lead ids of companyID matching text.
func (s *Service) Search(ctx context.Context, q Query) ([]string, error) {
	if s.primaryUp() {
		ids, err := s.primary.Search(ctx, q)
		if err == nil {
			return ids, nil
		}
		s.log.WithError(err).Warn("primary search failed, falling back to postgres")
	}
	if s.fallback == nil {
		return nil, fmt.Errorf("search: no backend available")
	}
	ids, err := s.fallback.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return ids, nil
}

// IndexLead indexes a lead in the background.
func (s *Service) IndexLead(lead store.Lead) {
	if !s.primaryUp() {
		return
	}
	record := RecordFromLead(lead)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.IndexLeads([]LeadRecord{record}); err != nil {
			s.log.WithError(err).WithField("lead_id", record.ID).Warn("index lead")
		}
	}()
}

// DeleteLead removes a lead from the index in the background.
func (s *Service) DeleteLead(id string) {
	if !s.primaryUp() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.DeleteLead(id); err != nil {
			s.log.WithError(err).WithField("lead_id", id).Warn("delete lead from index")
		}
	}()
}

// Wait blocks until background index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// RecordLoader supplies every lead for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]LeadRecord, error)
}

// ReindexAll pushes every lead from loader into the primary engine.
func (s *Service) ReindexAll(ctx context.Context, loader RecordLoader) {
	if !s.primaryUp() || loader == nil {
		return
	}
	records, err := loader.LoadAllRecords(ctx)
	if err != nil {
		s.log.WithError(err).Warn("reindex load failed")
		return
	}
	if err := s.primary.IndexLeads(records); err != nil {
		s.log.WithError(err).Warn("reindex leads")
		return
	}
	s.log.WithField("count", len(records)).Info("lead index rebuilt")
}
