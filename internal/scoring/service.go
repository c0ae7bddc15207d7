// Package scoring rates a lead 0-100 by handing its attributes and
// engagement history to a generative completion function.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/store"
)

// ErrUnavailable reports that the completion function could not be reached
// or failed. Nothing is persisted in that case.
var ErrUnavailable = errors.New("scoring unavailable")

const propertySampleSize = 10

// Store is the tenant-scoped data the scorer reads and the one write it makes.
type Store interface {
	GetLead(ctx context.Context, companyID, leadID string) (store.Lead, error)
	ListFollowUps(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.FollowUp, error)
	ListSiteVisits(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.SiteVisit, error)
	ListMessages(ctx context.Context, companyID string, filter store.RecordFilter) ([]store.Message, error)
	SampleProperties(ctx context.Context, companyID string, limit int) ([]store.PropertySample, error)
	SetLeadScore(ctx context.Context, companyID, leadID string, score int, reasoning string, at time.Time) (store.Lead, error)
}

type Service struct {
	store    Store
	engine   Engine
	timeout  time.Duration
	log      logrus.FieldLogger
	outcomes *prometheus.CounterVec
	now      func() time.Time
}

// NewService wires the scorer. engine may be nil, in which case every call
// reports ErrUnavailable. outcomes may be nil.
func NewService(st Store, engine Engine, timeout time.Duration, log logrus.FieldLogger, outcomes *prometheus.CounterVec) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		store:    st,
		engine:   engine,
		timeout:  timeout,
		log:      log,
		outcomes: outcomes,
		now:      time.Now,
	}
}

// Scored is the persisted lead together with the scoring result.
type Scored struct {
	Lead   store.Lead
	Result Result
}

// Score rates one lead of companyID and stores the result on the lead.
// A lead outside the company yields store.ErrNotFound.
func (s *Service) Score(ctx context.Context, companyID, leadID string) (Scored, error) {
	lead, err := s.store.GetLead(ctx, companyID, leadID)
	if err != nil {
		return Scored{}, err
	}

	signals, err := s.gather(ctx, lead)
	if err != nil {
		return Scored{}, err
	}
	prompt, err := BuildPrompt(signals)
	if err != nil {
		return Scored{}, err
	}

	if s.engine == nil {
		s.count("unavailable")
		return Scored{}, fmt.Errorf("%w: no completion engine configured", ErrUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	content, err := s.engine.Complete(callCtx, systemPrompt, prompt)
	cancel()
	if err != nil {
		s.count("unavailable")
		s.log.WithError(err).WithField("lead_id", lead.ID).Warn("lead scoring call failed")
		return Scored{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := Interpret(content)
	s.count(string(result.Outcome))

	updated, err := s.store.SetLeadScore(ctx, companyID, lead.ID, result.Score, result.Reasoning, s.now().UTC())
	if err != nil {
		return Scored{}, fmt.Errorf("persist lead score: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"lead_id":    lead.ID,
		"company_id": companyID,
		"score":      result.Score,
		"outcome":    result.Outcome,
	}).Info("lead scored")

	return Scored{Lead: updated, Result: result}, nil
}

func (s *Service) gather(ctx context.Context, lead store.Lead) (Signals, error) {
	byLead := store.RecordFilter{LeadID: lead.ID}

	followUps, err := s.store.ListFollowUps(ctx, lead.CompanyID, byLead)
	if err != nil {
		return Signals{}, fmt.Errorf("load follow ups: %w", err)
	}
	visits, err := s.store.ListSiteVisits(ctx, lead.CompanyID, byLead)
	if err != nil {
		return Signals{}, fmt.Errorf("load site visits: %w", err)
	}
	messages, err := s.store.ListMessages(ctx, lead.CompanyID, byLead)
	if err != nil {
		return Signals{}, fmt.Errorf("load messages: %w", err)
	}
	properties, err := s.store.SampleProperties(ctx, lead.CompanyID, propertySampleSize)
	if err != nil {
		return Signals{}, fmt.Errorf("load properties: %w", err)
	}

	return Signals{
		Lead:       lead,
		FollowUps:  followUps,
		SiteVisits: visits,
		Messages:   len(messages),
		Properties: properties,
	}, nil
}

func (s *Service) count(outcome string) {
	if s.outcomes != nil {
		s.outcomes.WithLabelValues(outcome).Inc()
	}
}
