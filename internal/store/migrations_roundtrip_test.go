package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CRM_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("CRM_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	applied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected migrations to be applied on an empty schema")
	}

	again, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no pending migrations, got %v", again)
	}

	if err := applyDownMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestPostgresStoreTenantScopingAndScoring(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	ownerA, companyA := registerTestCompany(t, ctx, s, "a@example.com")
	_, companyB := registerTestCompany(t, ctx, s, "b@example.com")

	caller, err := s.LookupCaller(ctx, ownerA)
	if err != nil {
		t.Fatalf("lookup caller: %v", err)
	}
	if caller.CompanyID != companyA || caller.Role != "super_admin" {
		t.Fatalf("unexpected caller: %+v", caller)
	}

	lead, err := s.InsertLead(ctx, Lead{
		ID:          uuid.NewString(),
		CompanyID:   companyA,
		Name:        "Ravi",
		Phone:       "+91 98765-43210",
		Stage:       "new",
		LastContact: time.Now(),
		CreatedBy:   ownerA,
	})
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}
	if len(lead.Tags) != 0 || lead.Tags == nil {
		t.Fatalf("expected empty tags, got %v", lead.Tags)
	}

	if _, err := s.GetLead(ctx, companyB, lead.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-tenant get to be not found, got %v", err)
	}
	if err := s.DeleteLead(ctx, companyB, lead.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-tenant delete to be not found, got %v", err)
	}

	matches, err := s.FindLeadsByPhoneDigits(ctx, "919876543210")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one phone match, got %d (%v)", len(matches), err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	first, err := s.SetLeadScore(ctx, companyA, lead.ID, 80, "good", at)
	if err != nil {
		t.Fatalf("set score: %v", err)
	}
	second, err := s.SetLeadScore(ctx, companyA, lead.ID, 60, "cooler", at)
	if err != nil {
		t.Fatalf("set score again: %v", err)
	}
	if !second.ScoredAt.After(*first.ScoredAt) {
		t.Fatalf("scored_at must increase: %v then %v", first.ScoredAt, second.ScoredAt)
	}

	stats, err := s.LeadStats(ctx, companyA, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		t.Fatalf("lead stats: %v", err)
	}
	if stats.Total != 1 || stats.AverageScore == nil || *stats.AverageScore != 60 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPostgresStoreMalformedUserIDsAreNotFound(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)
	_, companyID := registerTestCompany(t, ctx, s, "owner@example.com")

	if _, err := s.GetMemberRole(ctx, companyID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected member lookup by a non-uuid id to be not found, got %v", err)
	}
	if err := s.UpdateMemberRole(ctx, companyID, "bob", "sales"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected role update by a non-uuid id to be not found, got %v", err)
	}
	if err := s.RemoveMember(ctx, companyID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected removal by a non-uuid id to be not found, got %v", err)
	}
	member, err := s.IsMember(ctx, companyID, "bob")
	if err != nil || member {
		t.Fatalf("expected non-uuid id to be a non-member, got %v (%v)", member, err)
	}
	leads, err := s.ListLeads(ctx, companyID, LeadFilter{AssignedTo: "bob"})
	if err != nil {
		t.Fatalf("list leads by a non-uuid assignee: %v", err)
	}
	if len(leads) != 0 {
		t.Fatalf("expected no leads, got %d", len(leads))
	}
}

func registerTestCompany(t *testing.T, ctx context.Context, s *PostgresStore, email string) (string, string) {
	t.Helper()
	userID := uuid.NewString()
	companyID := uuid.NewString()
	err := s.RegisterCompany(ctx,
		Identity{ID: userID, Email: email, Name: "Owner", PasswordHash: "x"},
		Company{ID: companyID, Name: "Realty " + email, Email: email},
		Profile{ID: uuid.NewString(), UserID: userID, CompanyID: &companyID, Name: "Owner", Email: email},
		RoleAssignment{ID: uuid.NewString(), UserID: userID, CompanyID: companyID, Role: "super_admin", Status: RoleStatusActive},
	)
	if err != nil {
		t.Fatalf("register company: %v", err)
	}
	return userID, companyID
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		path    string
	}
	downs := make([]migration, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		downs = append(downs, migration{version: match[1], path: filepath.Join(migrationsDir, entry.Name())})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := os.ReadFile(down.path)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}
	return nil
}
