package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func draftRuleset(id, tenantID string) *domain.Ruleset {
	return &domain.Ruleset{
		ID:              id,
		TenantID:        tenantID,
		Domain:          "icc.ucp600",
		Jurisdiction:    "global",
		RulebookVersion: "2007",
		RulesetVersion:  "1",
		Status:          domain.StatusDraft,
		Rules: []domain.Rule{{
			RuleID:   "LC-AMT-001",
			Severity: domain.SeverityCritical,
			Conditions: []domain.Condition{{
				Field:    "invoice.amount",
				Operator: domain.OpEquals,
				Operand:  domain.FieldRef("lc.amount"),
			}},
			Outcome: domain.Outcome{Invalid: "invoice amount {actual} does not match credit amount {expected}"},
		}},
	}
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetRuleset", func(t *testing.T) {
		rs := draftRuleset("rs-001", tenantID)

		if err := repo.SaveRuleset(ctx, tenantID, rs); err != nil {
			t.Fatalf("SaveRuleset failed: %v", err)
		}

		retrieved, err := repo.GetRuleset(ctx, tenantID, rs.ID)
		if err != nil {
			t.Fatalf("GetRuleset failed: %v", err)
		}

		if retrieved.ID != rs.ID {
			t.Errorf("expected ID %s, got %s", rs.ID, retrieved.ID)
		}
		if retrieved.Status != domain.StatusDraft {
			t.Errorf("expected draft status, got %s", retrieved.Status)
		}
		if len(retrieved.Rules) != 1 || retrieved.Rules[0].RuleID != "LC-AMT-001" {
			t.Errorf("rules did not survive persistence: %+v", retrieved.Rules)
		}
		if retrieved.Rules[0].Conditions[0].Operand.Kind != domain.OperandFieldRef {
			t.Errorf("operand kind lost in round trip: %+v", retrieved.Rules[0].Conditions[0].Operand)
		}
	})

	t.Run("SaveRejectsNonDraft", func(t *testing.T) {
		rs := draftRuleset("rs-002", tenantID)
		rs.Status = domain.StatusActive

		err := repo.SaveRuleset(ctx, tenantID, rs)
		if !errors.Is(err, ErrNotDraft) {
			t.Errorf("expected ErrNotDraft, got %v", err)
		}
	})

	t.Run("SaveRejectsInvalidRuleset", func(t *testing.T) {
		rs := draftRuleset("rs-003", tenantID)
		rs.Rules[0].Conditions[0].Operator = "approximately"

		err := repo.SaveRuleset(ctx, tenantID, rs)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for unknown operator, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetRuleset(ctx, "tenant-002", "rs-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
	})

	t.Run("PublishActivatesDraft", func(t *testing.T) {
		published, err := repo.PublishRuleset(ctx, tenantID, "rs-001")
		if err != nil {
			t.Fatalf("PublishRuleset failed: %v", err)
		}

		if published.Status != domain.StatusActive {
			t.Errorf("expected active status, got %s", published.Status)
		}
		if published.PublishedAt == nil {
			t.Error("expected PublishedAt to be set")
		}

		active, err := repo.GetActiveRuleset(ctx, tenantID, published.Key())
		if err != nil {
			t.Fatalf("GetActiveRuleset failed: %v", err)
		}
		if active.ID != "rs-001" {
			t.Errorf("expected active ruleset rs-001, got %s", active.ID)
		}
	})

	t.Run("ActiveRulesetIsImmutable", func(t *testing.T) {
		rs := draftRuleset("rs-001", tenantID)

		err := repo.SaveRuleset(ctx, tenantID, rs)
		if !errors.Is(err, ErrNotDraft) {
			t.Errorf("expected ErrNotDraft when overwriting active ruleset, got %v", err)
		}
	})

	t.Run("PublishArchivesPreviousActive", func(t *testing.T) {
		v2 := draftRuleset("rs-004", tenantID)
		v2.RulesetVersion = "2"

		if err := repo.SaveRuleset(ctx, tenantID, v2); err != nil {
			t.Fatalf("SaveRuleset failed: %v", err)
		}
		if _, err := repo.PublishRuleset(ctx, tenantID, "rs-004"); err != nil {
			t.Fatalf("PublishRuleset failed: %v", err)
		}

		// Exactly one active per scope
		active, err := repo.GetActiveRuleset(ctx, tenantID, v2.Key())
		if err != nil {
			t.Fatalf("GetActiveRuleset failed: %v", err)
		}
		if active.ID != "rs-004" {
			t.Errorf("expected rs-004 active, got %s", active.ID)
		}

		old, err := repo.GetRuleset(ctx, tenantID, "rs-001")
		if err != nil {
			t.Fatalf("GetRuleset failed: %v", err)
		}
		if old.Status != domain.StatusArchived {
			t.Errorf("expected rs-001 archived, got %s", old.Status)
		}
	})

	t.Run("PublishRejectsRepublish", func(t *testing.T) {
		_, err := repo.PublishRuleset(ctx, tenantID, "rs-004")
		if !errors.Is(err, ErrNotDraft) {
			t.Errorf("expected ErrNotDraft for already-active ruleset, got %v", err)
		}
	})

	t.Run("PublishUnknownRuleset", func(t *testing.T) {
		_, err := repo.PublishRuleset(ctx, tenantID, "rs-missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListRulesets", func(t *testing.T) {
		key := domain.RulesetKey{Domain: "icc.ucp600", Jurisdiction: "global"}

		rulesets, err := repo.ListRulesets(ctx, tenantID, key)
		if err != nil {
			t.Fatalf("ListRulesets failed: %v", err)
		}
		if len(rulesets) < 2 {
			t.Fatalf("expected at least 2 versions in scope, got %d", len(rulesets))
		}

		actives := 0
		for _, rs := range rulesets {
			if rs.Status == domain.StatusActive {
				actives++
			}
		}
		if actives != 1 {
			t.Errorf("expected exactly one active ruleset, got %d", actives)
		}
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		other := domain.RulesetKey{Domain: "icc.isbp745", Jurisdiction: "global"}

		_, err := repo.GetActiveRuleset(ctx, tenantID, other)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other scope, got %v", err)
		}
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		report := &domain.ValidationReport{
			ID:             "rep-001",
			TenantID:       tenantID,
			DocumentType:   "invoice",
			Domain:         "icc.ucp600",
			Jurisdiction:   "global",
			RulesetVersion: "2",
			Status:         domain.StatusDiscrepant,
			Score:          0.75,
			Violations: []domain.Violation{{
				RuleID:         "LC-AMT-001",
				Severity:       domain.SeverityCritical,
				Message:        "invoice amount 51500 does not match credit amount 50000",
				RulesetVersion: "2",
			}},
			EvaluatedAt: time.Now().UTC(),
			Metadata: domain.ReportMetadata{
				RulesEvaluated: 4,
				RulesSkipped:   1,
				EngineVersion:  "kestrel-engine/1.0",
			},
		}

		if err := repo.SaveReport(ctx, tenantID, report); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		retrieved, err := repo.GetReport(ctx, tenantID, "rep-001")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}

		if retrieved.Status != domain.StatusDiscrepant {
			t.Errorf("expected DISCREPANT, got %s", retrieved.Status)
		}
		if retrieved.Score != 0.75 {
			t.Errorf("expected score 0.75, got %f", retrieved.Score)
		}
		if len(retrieved.Violations) != 1 {
			t.Errorf("expected 1 violation, got %d", len(retrieved.Violations))
		}
		if retrieved.Metadata.RulesEvaluated != 4 {
			t.Errorf("metadata lost in round trip: %+v", retrieved.Metadata)
		}
	})

	t.Run("GetReportNotFound", func(t *testing.T) {
		_, err := repo.GetReport(ctx, tenantID, "rep-missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveRuleset(ctx, "", draftRuleset("rs-x", "")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetActiveRuleset(ctx, "", domain.RulesetKey{Domain: "d", Jurisdiction: "j"}); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestNewRepositoryUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}
