package domain

import (
	"time"
)

// Violation is emitted when an applicable rule's conditions fail.
type Violation struct {
	RuleID         string   `json:"ruleId"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Field          string   `json:"field,omitempty"`
	Expected       string   `json:"expected,omitempty"`
	Actual         string   `json:"actual,omitempty"`
	RulesetVersion string   `json:"rulesetVersion"`

	// Unevaluable is set when the rule was marked violated defensively
	// because a condition could not be evaluated (operand type mismatch),
	// so operators can tell a real discrepancy from a broken rule.
	Unevaluable bool `json:"unevaluable,omitempty"`
}

// EvaluationErrorClass separates the kinds of internal evaluation failures.
type EvaluationErrorClass string

const (
	// ErrorClassPath covers malformed field path syntax.
	ErrorClassPath EvaluationErrorClass = "path"

	// ErrorClassType covers operand type mismatches.
	ErrorClassType EvaluationErrorClass = "type"

	// ErrorClassDate covers implausible or unparseable dates.
	ErrorClassDate EvaluationErrorClass = "date"
)

// EvaluationError records a rule that could not be evaluated cleanly.
// It is observability output, distinct from a compliance Violation.
type EvaluationError struct {
	RuleID    string               `json:"ruleId"`
	Condition int                  `json:"condition"`
	Class     EvaluationErrorClass `json:"class"`
	Detail    string               `json:"detail"`
}

// RuleState is the terminal state of one rule evaluation.
type RuleState string

const (
	RuleSkipped   RuleState = "SKIPPED"
	RuleSatisfied RuleState = "SATISFIED"
	RuleViolated  RuleState = "VIOLATED"
)

// DocumentStatus is the reconciled verdict for one document.
type DocumentStatus string

const (
	// StatusCompliant means every applicable rule was satisfied.
	StatusCompliant DocumentStatus = "COMPLIANT"

	// StatusDiscrepant means at least one critical or major rule failed.
	StatusDiscrepant DocumentStatus = "DISCREPANT"

	// StatusReview means only minor findings, or rules that could not be
	// evaluated, were recorded.
	StatusReview DocumentStatus = "REVIEW"
)

// ReportMetadata carries processing information for audit.
type ReportMetadata struct {
	TraceID        string `json:"traceId"`
	RulesMs        int64  `json:"rulesMs"`
	TotalMs        int64  `json:"totalMs"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	RulesSkipped   int    `json:"rulesSkipped"`
	RulesetStale   bool   `json:"rulesetStale,omitempty"`
	EngineVersion  string `json:"engineVersion"`
}

// ValidationReport is the persisted outcome of evaluating one document
// context against the active ruleset.
type ValidationReport struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	DocumentType   string         `json:"documentType"`
	Domain         string         `json:"domain"`
	Jurisdiction   string         `json:"jurisdiction"`
	RulesetVersion string         `json:"rulesetVersion"`
	Status         DocumentStatus `json:"status"`

	// Score is the compliance score on the normalized 0..1 scale. Every
	// consumer, including percentage rendering, shares this scale.
	Score float64 `json:"score"`

	Violations  []Violation       `json:"violations"`
	Errors      []EvaluationError `json:"errors,omitempty"`
	EvaluatedAt time.Time         `json:"evaluatedAt"`
	Metadata    ReportMetadata    `json:"metadata"`
}
