package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"realtycrm/api/internal/lead"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/scoring"
	"realtycrm/api/internal/search"
	"realtycrm/api/internal/store"
)

type LeadQuery struct {
	Stage      string
	AssignedTo string
	Source     string
	Text       string
}

func (s *Service) ListLeads(ctx context.Context, caller Caller, q LeadQuery) ([]store.Lead, error) {
	filter := store.LeadFilter{
		AssignedTo: strings.TrimSpace(q.AssignedTo),
		Source:     strings.TrimSpace(q.Source),
	}
	if q.Stage != "" {
		stage, err := lead.ParseStage(q.Stage)
		if err != nil {
			return nil, errInvalidStage(q.Stage)
		}
		filter.Stage = string(stage)
	}

	if text := strings.TrimSpace(q.Text); text != "" && s.search != nil {
		ids, err := s.search.Search(ctx, search.Query{CompanyID: caller.CompanyID, Text: text})
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []store.Lead{}, nil
		}
		filter.IDs = ids
	}
	return s.store.ListLeads(ctx, caller.CompanyID, filter)
}

func (s *Service) GetLead(ctx context.Context, caller Caller, leadID string) (store.Lead, error) {
	l, err := s.store.GetLead(ctx, caller.CompanyID, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Lead{}, errNotFound("Lead")
	}
	return l, err
}

func (s *Service) CreateLead(ctx context.Context, caller Caller, in lead.CreateInput) (store.Lead, error) {
	if err := s.authorize(caller, rbac.ActionCreate, rbac.Target{}); err != nil {
		return store.Lead{}, err
	}
	row, err := lead.New(s.newID(), caller.CompanyID, caller.UserID, in, s.now().UTC())
	if errors.Is(err, lead.ErrInvalidStage) {
		return store.Lead{}, errInvalidStage(in.Stage)
	}
	if err != nil {
		return store.Lead{}, err
	}
	if row.AssignedTo != nil {
		if err := s.requireMember(ctx, caller.CompanyID, *row.AssignedTo); err != nil {
			return store.Lead{}, err
		}
	}

	created, err := s.store.InsertLead(ctx, row)
	if err != nil {
		return store.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	s.indexLead(created)
	if created.AssignedTo != nil {
		s.notifyAssignee(ctx, caller, created)
	}
	return created, nil
}

func (s *Service) UpdateLead(ctx context.Context, caller Caller, leadID string, patch lead.Patch) (store.Lead, error) {
	if err := s.authorize(caller, rbac.ActionUpdate, rbac.Target{}); err != nil {
		return store.Lead{}, err
	}
	if patch.Stage != nil {
		if _, err := lead.ParseStage(*patch.Stage); err != nil {
			return store.Lead{}, errInvalidStage(*patch.Stage)
		}
	}

	current, err := s.store.GetLead(ctx, caller.CompanyID, leadID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Lead{}, errNotFound("Lead")
	}
	if err != nil {
		return store.Lead{}, err
	}

	result, err := lead.Apply(current, patch, s.now().UTC())
	if err != nil {
		return store.Lead{}, err
	}
	if result.AssigneeChanged && result.Lead.AssignedTo != nil {
		if err := s.requireMember(ctx, caller.CompanyID, *result.Lead.AssignedTo); err != nil {
			return store.Lead{}, err
		}
	}

	updated, err := s.store.UpdateLead(ctx, result.Lead)
	if errors.Is(err, store.ErrNotFound) {
		return store.Lead{}, errNotFound("Lead")
	}
	if err != nil {
		return store.Lead{}, fmt.Errorf("update lead: %w", err)
	}
	s.indexLead(updated)
	if result.AssigneeChanged && updated.AssignedTo != nil {
		s.notifyAssignee(ctx, caller, updated)
	}
	if result.StageChanged {
		s.log.WithField("lead_id", updated.ID).WithField("from", current.Stage).WithField("to", updated.Stage).Debug("lead stage changed")
	}
	return updated, nil
}

func (s *Service) DeleteLead(ctx context.Context, caller Caller, leadID string) error {
	if err := s.authorize(caller, rbac.ActionDelete, rbac.Target{}); err != nil {
		return err
	}
	if err := s.store.DeleteLead(ctx, caller.CompanyID, leadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("Lead")
		}
		return fmt.Errorf("delete lead: %w", err)
	}
	if s.search != nil {
		s.search.DeleteLead(leadID)
	}
	return nil
}

type ScoreResult struct {
	Score     int             `json:"score"`
	Reasoning string          `json:"reasoning"`
	Outcome   scoring.Outcome `json:"outcome"`
	ScoredAt  *time.Time      `json:"scoredAt"`
	Lead      store.Lead      `json:"lead"`
}

func (s *Service) ScoreLead(ctx context.Context, caller Caller, leadID string) (ScoreResult, error) {
	if err := s.authorize(caller, rbac.ActionUpdate, rbac.Target{}); err != nil {
		return ScoreResult{}, err
	}
	scored, err := s.scorer.Score(ctx, caller.CompanyID, leadID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ScoreResult{}, errNotFound("Lead")
	case errors.Is(err, scoring.ErrUnavailable):
		return ScoreResult{}, errScoringUnavailable()
	case err != nil:
		return ScoreResult{}, fmt.Errorf("score lead: %w", err)
	}
	return ScoreResult{
		Score:     scored.Result.Score,
		Reasoning: scored.Result.Reasoning,
		Outcome:   scored.Result.Outcome,
		ScoredAt:  scored.Lead.ScoredAt,
		Lead:      scored.Lead,
	}, nil
}

// requireMember rejects ids that are not members of the company. Ids from
// another tenant are reported exactly like unknown ones.
func (s *Service) requireMember(ctx context.Context, companyID, userID string) error {
	ok, err := s.store.IsMember(ctx, companyID, userID)
	if err != nil {
		return fmt.Errorf("check member: %w", err)
	}
	if !ok {
		return errNotFound("Assignee")
	}
	return nil
}

func (s *Service) indexLead(l store.Lead) {
	if s.search != nil {
		s.search.IndexLead(l)
	}
}

func (s *Service) notifyAssignee(ctx context.Context, caller Caller, l store.Lead) {
	if l.AssignedTo == nil || *l.AssignedTo == caller.UserID {
		return
	}
	s.notify(ctx, l.CompanyID, *l.AssignedTo, "New lead assigned",
		fmt.Sprintf("%s assigned %s to you", caller.Name, l.Name), "/leads/"+l.ID)
}
