//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel document
// compliance engine.
//
// These tests verify the COMPLETE evaluation pipeline:
//
//	Draft Ruleset → Publish → Document Context → Rules → Validation Report
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. DOCUMENT CONTEXT: The extracted fields of a trade-finance document
//    presentation (invoice, letter of credit, shipment, presentation dates)
//
// 2. RULE: A compliance check. Each rule has:
//   - Conditions: field / operator / operand triples that must ALL pass
//   - AppliesIf: optional gate deciding whether the rule applies at all
//   - Severity: critical, major or minor
//
// 3. RULESET: A versioned bundle of rules for one (domain, jurisdiction)
//    scope. Drafts are editable; exactly one version is active at a time.
//
// 4. REPORT: The reconciled verdict - "COMPLIANT", "DISCREPANT" (a critical
//    or major rule failed) or "REVIEW" (minor findings or broken rules).
//
// The tests seed their own ruleset through the API, so a clean database is
// fine. A running server is required:
//
//	go run cmd/kestrel/main.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("itest-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Operand  any    `json:"operand,omitempty"`
}

type Rule struct {
	RuleID     string      `json:"ruleId"`
	Severity   string      `json:"severity"`
	AppliesIf  []Condition `json:"appliesIf,omitempty"`
	Conditions []Condition `json:"conditions"`
	Outcome    Outcome     `json:"outcome"`
}

type Outcome struct {
	Invalid string `json:"invalid,omitempty"`
}

type CreateRulesetRequest struct {
	Domain          string `json:"domain"`
	Jurisdiction    string `json:"jurisdiction"`
	RulebookVersion string `json:"rulebookVersion"`
	RulesetVersion  string `json:"rulesetVersion"`
	Rules           []Rule `json:"rules"`
}

type Ruleset struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type EvaluateRequest struct {
	DocumentType string         `json:"documentType"`
	Domain       string         `json:"domain"`
	Jurisdiction string         `json:"jurisdiction"`
	Context      map[string]any `json:"context"`
}

type Violation struct {
	RuleID   string `json:"ruleId"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type Report struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"` // COMPLIANT, DISCREPANT or REVIEW
	Score      float64     `json:"score"`
	Violations []Violation `json:"violations"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

// fieldRef builds the tagged operand form the API expects for
// cross-document comparisons.
func fieldRef(path string) map[string]any {
	return map[string]any{"kind": "field_ref", "fieldRef": path}
}

// literal builds the tagged operand form for inline values.
func literal(v any) map[string]any {
	return map[string]any{"kind": "literal", "literal": v}
}

func doJSON(t *testing.T, config TestConfig, method, path string, reqBody, respBody any) int {
	t.Helper()

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if respBody != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, respBody); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(raw))
		}
	}
	return resp.StatusCode
}

// seedRuleset creates and publishes a UCP 600 style ruleset for the test
// tenant. Using a unique tenant per run keeps tests independent.
func seedRuleset(t *testing.T, config TestConfig) {
	t.Helper()

	req := CreateRulesetRequest{
		Domain:          "icc.ucp600",
		Jurisdiction:    "global",
		RulebookVersion: "2007",
		RulesetVersion:  "1",
		Rules: []Rule{
			{
				RuleID:   "LC-AMT-001",
				Severity: "critical",
				Conditions: []Condition{
					{Field: "invoice.amount", Operator: "equals", Operand: fieldRef("lc.amount")},
				},
				Outcome: Outcome{Invalid: "invoice amount {actual} does not match credit amount {expected}"},
			},
			{
				RuleID:   "LC-CCY-001",
				Severity: "critical",
				Conditions: []Condition{
					{Field: "invoice.currency", Operator: "equals", Operand: fieldRef("lc.currency")},
				},
				Outcome: Outcome{Invalid: "invoice currency {actual} differs from credit currency {expected}"},
			},
			{
				RuleID:   "LC-SHIP-001",
				Severity: "major",
				AppliesIf: []Condition{
					{Field: "shipment.date", Operator: "exists"},
				},
				Conditions: []Condition{
					{Field: "shipment.date", Operator: "before", Operand: fieldRef("lc.latest_shipment_date")},
				},
				Outcome: Outcome{Invalid: "shipment date {actual} is past the latest shipment date {expected}"},
			},
		},
	}

	var rs Ruleset
	if code := doJSON(t, config, http.MethodPost, "/api/v1/rulesets", req, &rs); code != http.StatusCreated {
		t.Fatalf("Failed to create ruleset: status %d", code)
	}
	if code := doJSON(t, config, http.MethodPost, "/api/v1/rulesets/"+rs.ID+"/publish", nil, nil); code != http.StatusOK {
		t.Fatalf("Failed to publish ruleset: status %d", code)
	}
}

func evaluate(t *testing.T, config TestConfig, context map[string]any) Report {
	t.Helper()

	req := EvaluateRequest{
		DocumentType: "commercial_invoice",
		Domain:       "icc.ucp600",
		Jurisdiction: "global",
		Context:      context,
	}

	var report Report
	if code := doJSON(t, config, http.MethodPost, "/api/v1/evaluate", req, &report); code != http.StatusOK {
		t.Fatalf("Expected status 200 from evaluate, got %d", code)
	}
	return report
}

func cleanPresentation() map[string]any {
	return map[string]any{
		"invoice": map[string]any{
			"amount":      50000,
			"currency":    "USD",
			"description": "galvanized steel bolts",
		},
		"lc": map[string]any{
			"amount":               50000,
			"currency":             "USD",
			"latest_shipment_date": "2026-04-15",
		},
		"shipment": map[string]any{
			"date": "2026-04-10",
		},
	}
}

// ============================================================================
// SCENARIO 1: Clean Presentation (Compliant)
// ============================================================================

func TestCleanPresentation_Compliant(t *testing.T) {
	/*
	   SCENARIO: Invoice matches the credit exactly and shipment is on time.

	   EXPECTED BEHAVIOR:
	   - LC-AMT-001: 50000 equals 50000 → SATISFIED
	   - LC-CCY-001: USD equals USD → SATISFIED
	   - LC-SHIP-001: 2026-04-10 not after 2026-04-15 → SATISFIED

	   FINAL VERDICT: "COMPLIANT" with score 1.0
	*/
	config := getTestConfig()
	seedRuleset(t, config)

	report := evaluate(t, config, cleanPresentation())

	if report.Status != "COMPLIANT" {
		t.Errorf("Expected COMPLIANT, got %s (violations: %v)", report.Status, report.Violations)
	}
	if report.Score != 1.0 {
		t.Errorf("Expected score 1.0, got %.2f", report.Score)
	}
	if len(report.Violations) > 0 {
		t.Errorf("Expected no violations, got %v", report.Violations)
	}

	t.Logf("✓ Clean presentation passed: status=%s, score=%.2f", report.Status, report.Score)
}

// ============================================================================
// SCENARIO 2: Amount Mismatch (Critical Discrepancy)
// ============================================================================

func TestAmountMismatch_Discrepant(t *testing.T) {
	/*
	   SCENARIO: Invoice drawn for 51,500 against a 50,000 credit.

	   EXPECTED BEHAVIOR:
	   - LC-AMT-001 (critical): 51500 does not equal 50000 → VIOLATED
	   - A critical violation makes the whole presentation DISCREPANT
	   - The violation message substitutes both amounts for the checker
	*/
	config := getTestConfig()
	seedRuleset(t, config)

	context := cleanPresentation()
	context["invoice"].(map[string]any)["amount"] = 51500

	report := evaluate(t, config, context)

	if report.Status != "DISCREPANT" {
		t.Errorf("Expected DISCREPANT, got %s", report.Status)
	}
	if len(report.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %d", len(report.Violations))
	}
	if report.Violations[0].RuleID != "LC-AMT-001" {
		t.Errorf("Expected LC-AMT-001 violation, got %s", report.Violations[0].RuleID)
	}
	if report.Violations[0].Message == "" {
		t.Error("Expected a formatted violation message")
	}

	t.Logf("✓ Amount mismatch flagged: %s", report.Violations[0].Message)
}

// ============================================================================
// SCENARIO 3: Late Shipment (Major Discrepancy)
// ============================================================================

func TestLateShipment_Discrepant(t *testing.T) {
	/*
	   SCENARIO: Goods shipped two days after the latest shipment date.

	   EXPECTED BEHAVIOR:
	   - LC-SHIP-001 (major): 2026-04-17 is after 2026-04-15 → VIOLATED
	   - Major violations are discrepancies too, same as critical ones
	*/
	config := getTestConfig()
	seedRuleset(t, config)

	context := cleanPresentation()
	context["shipment"].(map[string]any)["date"] = "2026-04-17"

	report := evaluate(t, config, context)

	if report.Status != "DISCREPANT" {
		t.Errorf("Expected DISCREPANT, got %s", report.Status)
	}

	t.Logf("✓ Late shipment flagged: status=%s", report.Status)
}

// ============================================================================
// SCENARIO 4: Missing Shipment Date (Rule Gated Off)
// ============================================================================

func TestMissingShipmentDate_RuleSkipped(t *testing.T) {
	/*
	   SCENARIO: No shipment document in the presentation at all.

	   EXPECTED BEHAVIOR:
	   - LC-SHIP-001 has an appliesIf gate on shipment.date being present
	   - With no shipment date the rule is SKIPPED, not violated
	   - The remaining rules still pass → "COMPLIANT"

	   WHY THIS TEST:
	   A skipped rule must never count against the document. Gating is how
	   one ruleset serves presentations with different document mixes.
	*/
	config := getTestConfig()
	seedRuleset(t, config)

	context := cleanPresentation()
	delete(context, "shipment")

	report := evaluate(t, config, context)

	if report.Status != "COMPLIANT" {
		t.Errorf("Expected COMPLIANT when gated rule is skipped, got %s (violations: %v)",
			report.Status, report.Violations)
	}

	t.Logf("✓ Gated rule skipped cleanly: status=%s", report.Status)
}

// ============================================================================
// SCENARIO 5: Report Persistence and Retrieval
// ============================================================================

func TestReportRoundTrip(t *testing.T) {
	/*
	   SCENARIO: Every evaluation is persisted for audit; fetch one back.

	   EXPECTED BEHAVIOR:
	   - POST /api/v1/evaluate returns a report with an ID
	   - GET /api/v1/reports/{id} returns the same verdict
	*/
	config := getTestConfig()
	seedRuleset(t, config)

	report := evaluate(t, config, cleanPresentation())
	if report.ID == "" {
		t.Fatal("Expected a report ID")
	}

	var stored Report
	if code := doJSON(t, config, http.MethodGet, "/api/v1/reports/"+report.ID, nil, &stored); code != http.StatusOK {
		t.Fatalf("Expected status 200 fetching report, got %d", code)
	}
	if stored.Status != report.Status {
		t.Errorf("Stored report status %s differs from returned %s", stored.Status, report.Status)
	}

	t.Logf("✓ Report %s persisted and retrieved", report.ID)
}

// ============================================================================
// SCENARIO 6: Publish Replaces the Active Version
// ============================================================================

func TestPublishNewVersion_TakesEffect(t *testing.T) {
	/*
	   SCENARIO: Tighten the ruleset with a version 2 that also requires the
	   goods description to mention the credit's goods.

	   EXPECTED BEHAVIOR:
	   - Version 1 passes the presentation
	   - Publishing version 2 archives version 1 and invalidates caches
	   - The same presentation is now DISCREPANT under version 2

	   NOTE: In a multi-node deployment the invalidation event propagates
	   over the bus; a short retry window is allowed for the new version.
	*/
	config := getTestConfig()
	seedRuleset(t, config)

	if report := evaluate(t, config, cleanPresentation()); report.Status != "COMPLIANT" {
		t.Fatalf("Expected COMPLIANT under version 1, got %s", report.Status)
	}

	req := CreateRulesetRequest{
		Domain:          "icc.ucp600",
		Jurisdiction:    "global",
		RulebookVersion: "2007",
		RulesetVersion:  "2",
		Rules: []Rule{
			{
				RuleID:   "LC-GOODS-001",
				Severity: "critical",
				Conditions: []Condition{
					{Field: "invoice.description", Operator: "contains", Operand: literal("machine parts")},
				},
				Outcome: Outcome{Invalid: "goods description does not correspond to the credit"},
			},
		},
	}

	var rs Ruleset
	if code := doJSON(t, config, http.MethodPost, "/api/v1/rulesets", req, &rs); code != http.StatusCreated {
		t.Fatalf("Failed to create version 2: status %d", code)
	}
	if code := doJSON(t, config, http.MethodPost, "/api/v1/rulesets/"+rs.ID+"/publish", nil, nil); code != http.StatusOK {
		t.Fatalf("Failed to publish version 2: status %d", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		report := evaluate(t, config, cleanPresentation())
		if report.Status == "DISCREPANT" {
			t.Logf("✓ Version 2 took effect: status=%s", report.Status)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Version 2 never took effect, last status %s", report.Status)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
