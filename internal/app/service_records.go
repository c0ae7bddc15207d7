package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/store"
	"realtycrm/api/internal/validate"
)

const (
	visitScheduled = "scheduled"
	visitCompleted = "completed"
	visitCancelled = "cancelled"
)

type RecordQuery struct {
	LeadID string
	Status string
}

func (q RecordQuery) filter() store.RecordFilter {
	return store.RecordFilter{LeadID: strings.TrimSpace(q.LeadID), Status: strings.TrimSpace(q.Status)}
}

func notFoundAs(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errNotFound(entity)
	}
	return err
}

// ---- properties

type PropertyInput struct {
	Title       string  `json:"title" validate:"required"`
	Location    string  `json:"location" validate:"required"`
	BHK         string  `json:"bhk"`
	Area        string  `json:"area"`
	Price       string  `json:"price"`
	Description *string `json:"description"`
	Status      string  `json:"status" validate:"omitempty,oneof=available sold upcoming"`
}

type PropertyPatch struct {
	Title       *string `json:"title"`
	Location    *string `json:"location"`
	BHK         *string `json:"bhk"`
	Area        *string `json:"area"`
	Price       *string `json:"price"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type propertyFields struct {
	Title    string `json:"title" validate:"required"`
	Location string `json:"location" validate:"required"`
	Status   string `json:"status" validate:"oneof=available sold upcoming"`
}

func (s *Service) ListProperties(ctx context.Context, caller Caller, q RecordQuery) ([]store.Property, error) {
	return s.store.ListProperties(ctx, caller.CompanyID, q.filter())
}

func (s *Service) CreateProperty(ctx context.Context, caller Caller, in PropertyInput) (store.Property, error) {
	if err := s.authorize(caller, rbac.ActionCreate, rbac.Target{}); err != nil {
		return store.Property{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	if err := validate.Struct(in); err != nil {
		return store.Property{}, err
	}
	if in.Status == "" {
		in.Status = "available"
	}
	return s.store.InsertProperty(ctx, store.Property{
		ID:          s.newID(),
		CompanyID:   caller.CompanyID,
		Title:       in.Title,
		Location:    in.Location,
		BHK:         strings.TrimSpace(in.BHK),
		Area:        strings.TrimSpace(in.Area),
		Price:       strings.TrimSpace(in.Price),
		Description: trimmed(in.Description),
		Status:      in.Status,
		CreatedBy:   caller.UserID,
	})
}

func (s *Service) UpdateProperty(ctx context.Context, caller Caller, id string, patch PropertyPatch) (store.Property, error) {
	if err := s.authorize(caller, rbac.ActionUpdate, rbac.Target{}); err != nil {
		return store.Property{}, err
	}
	current, err := s.store.GetProperty(ctx, caller.CompanyID, id)
	if err != nil {
		return store.Property{}, notFoundAs(err, "Property")
	}
	next := PropertyInput{
		Title:       current.Title,
		Location:    current.Location,
		BHK:         current.BHK,
		Area:        current.Area,
		Price:       current.Price,
		Description: current.Description,
		Status:      current.Status,
	}
	setString(&next.Title, patch.Title)
	setString(&next.Location, patch.Location)
	setString(&next.BHK, patch.BHK)
	setString(&next.Area, patch.Area)
	setString(&next.Price, patch.Price)
	setString(&next.Status, patch.Status)
	if patch.Description != nil {
		next.Description = trimmed(patch.Description)
	}
	if err := validate.Struct(propertyFields{Title: next.Title, Location: next.Location, Status: next.Status}); err != nil {
		return store.Property{}, err
	}

	current.Title, current.Location = next.Title, next.Location
	current.BHK, current.Area, current.Price = next.BHK, next.Area, next.Price
	current.Description, current.Status = next.Description, next.Status
	updated, err := s.store.UpdateProperty(ctx, current)
	return updated, notFoundAs(err, "Property")
}

func (s *Service) DeleteProperty(ctx context.Context, caller Caller, id string) error {
	if err := s.authorize(caller, rbac.ActionDelete, rbac.Target{}); err != nil {
		return err
	}
	return notFoundAs(s.store.DeleteProperty(ctx, caller.CompanyID, id), "Property")
}

// ---- site visits

type SiteVisitInput struct {
	LeadID     string  `json:"lead_id" validate:"required"`
	PropertyID string  `json:"property_id" validate:"required"`
	VisitDate  string  `json:"visit_date" validate:"required"`
	VisitTime  string  `json:"visit_time" validate:"required"`
	Status     string  `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
	Feedback   *string `json:"feedback"`
}

type SiteVisitPatch struct {
	VisitDate *string `json:"visit_date"`
	VisitTime *string `json:"visit_time"`
	Status    *string `json:"status"`
	Feedback  *string `json:"feedback"`
}

type siteVisitFields struct {
	VisitDate string `json:"visit_date" validate:"required"`
	VisitTime string `json:"visit_time" validate:"required"`
	Status    string `json:"status" validate:"oneof=scheduled completed cancelled"`
}

func (s *Service) ListSiteVisits(ctx context.Context, caller Caller, q RecordQuery) ([]store.SiteVisit, error) {
	return s.store.ListSiteVisits(ctx, caller.CompanyID, q.filter())
}

func (s *Service) CreateSiteVisit(ctx context.Context, caller Caller, in SiteVisitInput) (store.SiteVisit, error) {
	if err := s.authorize(caller, rbac.ActionCreate, rbac.Target{}); err != nil {
		return store.SiteVisit{}, err
	}
	in.VisitDate = strings.TrimSpace(in.VisitDate)
	in.VisitTime = strings.TrimSpace(in.VisitTime)
	if err := validate.Struct(in); err != nil {
		return store.SiteVisit{}, err
	}
	if _, err := s.store.GetLead(ctx, caller.CompanyID, in.LeadID); err != nil {
		return store.SiteVisit{}, notFoundAs(err, "Lead")
	}
	if _, err := s.store.GetProperty(ctx, caller.CompanyID, in.PropertyID); err != nil {
		return store.SiteVisit{}, notFoundAs(err, "Property")
	}
	if in.Status == "" {
		in.Status = visitScheduled
	}
	return s.store.InsertSiteVisit(ctx, store.SiteVisit{
		ID:         s.newID(),
		CompanyID:  caller.CompanyID,
		LeadID:     in.LeadID,
		PropertyID: in.PropertyID,
		VisitDate:  in.VisitDate,
		VisitTime:  in.VisitTime,
		Status:     in.Status,
		Feedback:   trimmed(in.Feedback),
		CreatedBy:  caller.UserID,
	})
}

// visitTerminal reports whether a visit can no longer change status.
func visitTerminal(status string) bool {
	return status == visitCompleted || status == visitCancelled
}

func (s *Service) UpdateSiteVisit(ctx context.Context, caller Caller, id string, patch SiteVisitPatch) (store.SiteVisit, error) {
	if err := s.authorize(caller, rbac.ActionUpdate, rbac.Target{}); err != nil {
		return store.SiteVisit{}, err
	}
	current, err := s.store.GetSiteVisit(ctx, caller.CompanyID, id)
	if err != nil {
		return store.SiteVisit{}, notFoundAs(err, "Site visit")
	}

	next := current
	setString(&next.VisitDate, patch.VisitDate)
	setString(&next.VisitTime, patch.VisitTime)
	setString(&next.Status, patch.Status)
	if patch.Feedback != nil {
		next.Feedback = trimmed(patch.Feedback)
	}
	if err := validate.Struct(siteVisitFields{VisitDate: next.VisitDate, VisitTime: next.VisitTime, Status: next.Status}); err != nil {
		return store.SiteVisit{}, err
	}
	if next.Status != current.Status && visitTerminal(current.Status) {
		return store.SiteVisit{}, errInvalidTransition(fmt.Sprintf("site visit is %s and cannot change status", current.Status))
	}

	updated, err := s.store.UpdateSiteVisit(ctx, next)
	return updated, notFoundAs(err, "Site visit")
}

func (s *Service) DeleteSiteVisit(ctx context.Context, caller Caller, id string) error {
	if err := s.authorize(caller, rbac.ActionDelete, rbac.Target{}); err != nil {
		return err
	}
	return notFoundAs(s.store.DeleteSiteVisit(ctx, caller.CompanyID, id), "Site visit")
}

// ---- follow-ups

type FollowUpInput struct {
	LeadID       string  `json:"lead_id" validate:"required"`
	Type         string  `json:"type" validate:"required,oneof=call whatsapp meeting email"`
	FollowUpDate string  `json:"follow_up_date" validate:"required"`
	FollowUpTime string  `json:"follow_up_time" validate:"required"`
	Notes        *string `json:"notes"`
	Status       string  `json:"status" validate:"omitempty,oneof=pending completed missed"`
}

type FollowUpPatch struct {
	Type         *string `json:"type"`
	FollowUpDate *string `json:"follow_up_date"`
	FollowUpTime *string `json:"follow_up_time"`
	Notes        *string `json:"notes"`
	Status       *string `json:"status"`
}

type followUpFields struct {
	Type         string `json:"type" validate:"oneof=call whatsapp meeting email"`
	FollowUpDate string `json:"follow_up_date" validate:"required"`
	FollowUpTime string `json:"follow_up_time" validate:"required"`
	Status       string `json:"status" validate:"oneof=pending completed missed"`
}

func (s *Service) ListFollowUps(ctx context.Context, caller Caller, q RecordQuery) ([]store.FollowUp, error) {
	return s.store.ListFollowUps(ctx, caller.CompanyID, q.filter())
}

func (s *Service) CreateFollowUp(ctx context.Context, caller Caller, in FollowUpInput) (store.FollowUp, error) {
	if err := s.authorize(caller, rbac.ActionCreate, rbac.Target{}); err != nil {
		return store.FollowUp{}, err
	}
	in.FollowUpDate = strings.TrimSpace(in.FollowUpDate)
	in.FollowUpTime = strings.TrimSpace(in.FollowUpTime)
	if err := validate.Struct(in); err != nil {
		return store.FollowUp{}, err
	}
	if _, err := s.store.GetLead(ctx, caller.CompanyID, in.LeadID); err != nil {
		return store.FollowUp{}, notFoundAs(err, "Lead")
	}
	if in.Status == "" {
		in.Status = "pending"
	}
	return s.store.InsertFollowUp(ctx, store.FollowUp{
		ID:           s.newID(),
		CompanyID:    caller.CompanyID,
		LeadID:       in.LeadID,
		Type:         in.Type,
		FollowUpDate: in.FollowUpDate,
		FollowUpTime: in.FollowUpTime,
		Notes:        trimmed(in.Notes),
		Status:       in.Status,
		CreatedBy:    caller.UserID,
	})
}

func (s *Service) UpdateFollowUp(ctx context.Context, caller Caller, id string, patch FollowUpPatch) (store.FollowUp, error) {
	if err := s.authorize(caller, rbac.ActionUpdate, rbac.Target{}); err != nil {
		return store.FollowUp{}, err
	}
	current, err := s.store.GetFollowUp(ctx, caller.CompanyID, id)
	if err != nil {
		return store.FollowUp{}, notFoundAs(err, "Follow-up")
	}
	next := current
	setString(&next.Type, patch.Type)
	setString(&next.FollowUpDate, patch.FollowUpDate)
	setString(&next.FollowUpTime, patch.FollowUpTime)
	setString(&next.Status, patch.Status)
	if patch.Notes != nil {
		next.Notes = trimmed(patch.Notes)
	}
	if err := validate.Struct(followUpFields{
		Type:         next.Type,
		FollowUpDate: next.FollowUpDate,
		FollowUpTime: next.FollowUpTime,
		Status:       next.Status,
	}); err != nil {
		return store.FollowUp{}, err
	}
	updated, err := s.store.UpdateFollowUp(ctx, next)
	return updated, notFoundAs(err, "Follow-up")
}

func (s *Service) DeleteFollowUp(ctx context.Context, caller Caller, id string) error {
	if err := s.authorize(caller, rbac.ActionDelete, rbac.Target{}); err != nil {
		return err
	}
	return notFoundAs(s.store.DeleteFollowUp(ctx, caller.CompanyID, id), "Follow-up")
}

// ---- workflows

type WorkflowInput struct {
	Name         string `json:"name" validate:"required"`
	TriggerEvent string `json:"trigger_event" validate:"required"`
	Action       string `json:"action" validate:"required"`
	Status       string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type WorkflowPatch struct {
	Name         *string `json:"name"`
	TriggerEvent *string `json:"trigger_event"`
	Action       *string `json:"action"`
	Status       *string `json:"status"`
}

type workflowFields struct {
	Name         string `json:"name" validate:"required"`
	TriggerEvent string `json:"trigger_event" validate:"required"`
	Action       string `json:"action" validate:"required"`
	Status       string `json:"status" validate:"oneof=active inactive"`
}

func (s *Service) ListWorkflows(ctx context.Context, caller Caller) ([]store.Workflow, error) {
	return s.store.ListWorkflows(ctx, caller.CompanyID)
}

func (s *Service) CreateWorkflow(ctx context.Context, caller Caller, in WorkflowInput) (store.Workflow, error) {
	if err := s.authorize(caller, rbac.ActionCreate, rbac.Target{}); err != nil {
		return store.Workflow{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.TriggerEvent = strings.TrimSpace(in.TriggerEvent)
	in.Action = strings.TrimSpace(in.Action)
	if err := validate.Struct(in); err != nil {
		return store.Workflow{}, err
	}
	if in.Status == "" {
		in.Status = "active"
	}
	return s.store.InsertWorkflow(ctx, store.Workflow{
		ID:           s.newID(),
		CompanyID:    caller.CompanyID,
		Name:         in.Name,
		TriggerEvent: in.TriggerEvent,
		Action:       in.Action,
		Status:       in.Status,
		CreatedBy:    caller.UserID,
	})
}

func (s *Service) UpdateWorkflow(ctx context.Context, caller Caller, id string, patch WorkflowPatch) (store.Workflow, error) {
	if err := s.authorize(caller, rbac.ActionUpdate, rbac.Target{}); err != nil {
		return store.Workflow{}, err
	}
	current, err := s.store.GetWorkflow(ctx, caller.CompanyID, id)
	if err != nil {
		return store.Workflow{}, notFoundAs(err, "Workflow")
	}
	next := WorkflowInput{Name: current.Name, TriggerEvent: current.TriggerEvent, Action: current.Action, Status: current.Status}
	setString(&next.Name, patch.Name)
	setString(&next.TriggerEvent, patch.TriggerEvent)
	setString(&next.Action, patch.Action)
	setString(&next.Status, patch.Status)
	if err := validate.Struct(workflowFields(next)); err != nil {
		return store.Workflow{}, err
	}
	current.Name, current.TriggerEvent, current.Action, current.Status = next.Name, next.TriggerEvent, next.Action, next.Status
	updated, err := s.store.UpdateWorkflow(ctx, current)
	return updated, notFoundAs(err, "Workflow")
}

func (s *Service) DeleteWorkflow(ctx context.Context, caller Caller, id string) error {
	if err := s.authorize(caller, rbac.ActionDelete, rbac.Target{}); err != nil {
		return err
	}
	return notFoundAs(s.store.DeleteWorkflow(ctx, caller.CompanyID, id), "Workflow")
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}
