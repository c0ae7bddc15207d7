package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"realtycrm/api/internal/lead"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/scoring"
)

func TestCreateLeadValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	callers := env.seedCompany(t, "Acme Realty")
	rival := env.seedCompany(t, "Rival Homes")
	sales := callers[rbac.RoleSales]

	tests := []struct {
		name     string
		input    lead.CreateInput
		wantCode string
	}{
		{name: "unknown stage", input: lead.CreateInput{Name: "Rajesh", Phone: "9876543210", Stage: "won"}, wantCode: "INVALID_STAGE"},
		{name: "missing phone", input: lead.CreateInput{Name: "Rajesh"}, wantCode: "VALIDATION_ERROR"},
		{name: "assignee from another company", input: lead.CreateInput{Name: "Rajesh", Phone: "9876543210", AssignedTo: strPtr(rival[rbac.RoleSales].UserID)}, wantCode: "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateLead(ctx, sales, tc.input)
			if code := errorCode(err); code != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}
	if len(env.store.leads) != 0 {
		t.Fatalf("rejected creates must not write, found %d leads", len(env.store.leads))
	}
}

func TestCreateLeadNotifiesAssigneeAndIndexes(t *testing.T) {
	env := newTestEnv(t)
	callers := env.seedCompany(t, "Acme Realty")
	manager := callers[rbac.RoleManager]
	sales := callers[rbac.RoleSales]

	created, err := env.svc.CreateLead(context.Background(), manager, lead.CreateInput{
		Name:       "Meera",
		Phone:      "+91 98200 11122",
		AssignedTo: strPtr(sales.UserID),
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if got := env.store.notificationsFor(sales.UserID); len(got) != 1 {
		t.Fatalf("expected one assignment notification, got %d", len(got))
	}
	if len(env.index.indexed) != 1 || env.index.indexed[0] != created.ID {
		t.Fatalf("expected lead to be indexed, got %v", env.index.indexed)
	}
}

func TestLeadTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.seedCompany(t, "Acme Realty")
	rival := env.seedCompany(t, "Rival Homes")

	created, err := env.svc.CreateLead(ctx, acme[rbac.RoleSales], lead.CreateInput{Name: "Rajesh", Phone: "9876543210"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	outsider := rival[rbac.RoleSuperAdmin]

	if _, err := env.svc.GetLead(ctx, outsider, created.ID); errorCode(err) != "NOT_FOUND" {
		t.Fatalf("get across tenants: expected NOT_FOUND, got %v", err)
	}
	if _, err := env.svc.UpdateLead(ctx, outsider, created.ID, lead.Patch{Name: strPtr("Hijacked")}); errorCode(err) != "NOT_FOUND" {
		t.Fatalf("update across tenants: expected NOT_FOUND, got %v", err)
	}
	if err := env.svc.DeleteLead(ctx, outsider, created.ID); errorCode(err) != "NOT_FOUND" {
		t.Fatalf("delete across tenants: expected NOT_FOUND, got %v", err)
	}
	if _, err := env.svc.ScoreLead(ctx, outsider, created.ID); errorCode(err) != "NOT_FOUND" {
		t.Fatalf("score across tenants: expected NOT_FOUND, got %v", err)
	}
	listed, err := env.svc.ListLeads(ctx, outsider, LeadQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no leads visible to another tenant, got %d", len(listed))
	}
	if env.store.leads[created.ID].Name != "Rajesh" {
		t.Fatalf("lead must be untouched")
	}
}

func TestDeleteLeadRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	callers := env.seedCompany(t, "Acme Realty")
	created, err := env.svc.CreateLead(ctx, callers[rbac.RoleSales], lead.CreateInput{Name: "Rajesh", Phone: "9876543210"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}

	if err := env.svc.DeleteLead(ctx, callers[rbac.RoleSales], created.ID); errorCode(err) != "FORBIDDEN" {
		t.Fatalf("sales delete: expected FORBIDDEN, got %v", err)
	}
	if err := env.svc.DeleteLead(ctx, callers[rbac.RoleManager], created.ID); err != nil {
		t.Fatalf("manager delete: %v", err)
	}
	if len(env.index.deleted) != 1 {
		t.Fatalf("expected search removal, got %v", env.index.deleted)
	}
}

func TestUpdateLeadStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sales := env.seedCompany(t, "Acme Realty")[rbac.RoleSales]
	created, err := env.svc.CreateLead(ctx, sales, lead.CreateInput{Name: "Rajesh", Phone: "9876543210"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}

	if _, err := env.svc.UpdateLead(ctx, sales, created.ID, lead.Patch{Stage: strPtr("archived")}); errorCode(err) != "INVALID_STAGE" {
		t.Fatalf("expected INVALID_STAGE, got %v", err)
	}
	if env.store.leads[created.ID].Stage != "new" {
		t.Fatalf("invalid stage must not be written")
	}

	env.clock.Advance(time.Minute)
	renamed, err := env.svc.UpdateLead(ctx, sales, created.ID, lead.Patch{Name: strPtr("Rajesh K")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !renamed.LastContact.Equal(created.LastContact) {
		t.Fatalf("non-stage edits must not move last_contact")
	}

	env.clock.Advance(time.Minute)
	moved, err := env.svc.UpdateLead(ctx, sales, created.ID, lead.Patch{Stage: strPtr("closed-lost")})
	if err != nil {
		t.Fatalf("move stage: %v", err)
	}
	if moved.Stage != "closed-lost" || !moved.LastContact.Equal(env.clock.Now()) {
		t.Fatalf("unexpected lead after stage change: stage=%s last_contact=%v", moved.Stage, moved.LastContact)
	}
}

func TestListLeadsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sales := env.seedCompany(t, "Acme Realty")[rbac.RoleSales]
	first, _ := env.svc.CreateLead(ctx, sales, lead.CreateInput{Name: "Rajesh", Phone: "9876543210", Source: strPtr("Website")})
	env.clock.Advance(time.Second)
	second, _ := env.svc.CreateLead(ctx, sales, lead.CreateInput{Name: "Meera", Phone: "9820011122", Stage: "contacted"})

	if _, err := env.svc.ListLeads(ctx, sales, LeadQuery{Stage: "bogus"}); errorCode(err) != "INVALID_STAGE" {
		t.Fatalf("expected INVALID_STAGE, got %v", err)
	}

	byStage, err := env.svc.ListLeads(ctx, sales, LeadQuery{Stage: "contacted"})
	if err != nil || len(byStage) != 1 || byStage[0].ID != second.ID {
		t.Fatalf("stage filter: got %v err=%v", byStage, err)
	}
	bySource, err := env.svc.ListLeads(ctx, sales, LeadQuery{Source: "Website"})
	if err != nil || len(bySource) != 1 || bySource[0].ID != first.ID {
		t.Fatalf("source filter: got %v err=%v", bySource, err)
	}

	env.index.ids = []string{first.ID}
	byText, err := env.svc.ListLeads(ctx, sales, LeadQuery{Text: "raj"})
	if err != nil || len(byText) != 1 || byText[0].ID != first.ID {
		t.Fatalf("text search: got %v err=%v", byText, err)
	}
	env.index.ids = nil
	none, err := env.svc.ListLeads(ctx, sales, LeadQuery{Text: "nobody"})
	if err != nil || len(none) != 0 {
		t.Fatalf("empty search must return no leads, got %v err=%v", none, err)
	}
}

func TestScoreLeadOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("unparseable answer falls back", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.response = "I think this lead is pretty good"
		sales := env.seedCompany(t, "Acme Realty")[rbac.RoleSales]
		created, _ := env.svc.CreateLead(ctx, sales, lead.CreateInput{Name: "Rajesh", Phone: "9876543210"})

		result, err := env.svc.ScoreLead(ctx, sales, created.ID)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if result.Outcome != scoring.OutcomeFallback || result.Score != 50 {
			t.Fatalf("expected fallback 50, got %+v", result)
		}
	})

	t.Run("engine failure persists nothing", func(t *testing.T) {
		env := newTestEnv(t)
		env.engine.err = errors.New("gateway timeout")
		sales := env.seedCompany(t, "Acme Realty")[rbac.RoleSales]
		created, _ := env.svc.CreateLead(ctx, sales, lead.CreateInput{Name: "Rajesh", Phone: "9876543210"})

		_, err := env.svc.ScoreLead(ctx, sales, created.ID)
		if code := errorCode(err); code != "SCORING_UNAVAILABLE" {
			t.Fatalf("expected SCORING_UNAVAILABLE, got %v", err)
		}
		if env.store.leads[created.ID].LeadScore != nil {
			t.Fatalf("score must not be written on failure")
		}
	})

	t.Run("no engine configured", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.Engine = nil })
		sales := env.seedCompany(t, "Acme Realty")[rbac.RoleSales]
		created, _ := env.svc.CreateLead(ctx, sales, lead.CreateInput{Name: "Rajesh", Phone: "9876543210"})

		_, err := env.svc.ScoreLead(ctx, sales, created.ID)
		if code := errorCode(err); code != "SCORING_UNAVAILABLE" {
			t.Fatalf("expected SCORING_UNAVAILABLE, got %v", err)
		}
	})
}
