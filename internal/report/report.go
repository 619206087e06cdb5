// Package report reconciles rule outcomes into a validation report: the
// per-document verdict, the normalized compliance score, and the audit
// metadata persisted alongside.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Processor turns an engine result into a persistable validation report.
type Processor struct{}

// NewProcessor creates a report processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Input carries everything one reconciliation needs.
type Input struct {
	TenantID     string
	DocumentType string
	Key          domain.RulesetKey
	TraceID      string
	Result       rules.Result
	RulesetStale bool
	StartTime    time.Time
	RulesMs      int64
}

// Process reconciles rule outcomes into the final document verdict.
//
// A critical or major violation that the engine could actually evaluate
// makes the document DISCREPANT. Minor findings, and rules the engine had
// to fail closed on, land in REVIEW so a document checker looks at them
// without blocking presentation outright. A clean run is COMPLIANT.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.ValidationReport {
	res := input.Result

	report := &domain.ValidationReport{
		ID:             uuid.New().String(),
		TenantID:       input.TenantID,
		DocumentType:   input.DocumentType,
		Domain:         input.Key.Domain,
		Jurisdiction:   input.Key.Jurisdiction,
		RulesetVersion: res.RulesetVersion,
		Violations:     res.Violations,
		Errors:         res.Errors,
		EvaluatedAt:    time.Now().UTC(),
	}

	report.Status = reconcile(res)
	report.Score = Score(res)

	report.Metadata = domain.ReportMetadata{
		TraceID:        input.TraceID,
		RulesMs:        input.RulesMs,
		TotalMs:        time.Since(input.StartTime).Milliseconds(),
		RulesEvaluated: res.Evaluated,
		RulesSkipped:   res.Skipped,
		RulesetStale:   input.RulesetStale,
		EngineVersion:  rules.EngineVersion,
	}

	return report
}

func reconcile(res rules.Result) domain.DocumentStatus {
	needsReview := len(res.Errors) > 0

	for _, v := range res.Violations {
		if v.Unevaluable {
			needsReview = true
			continue
		}
		switch v.Severity {
		case domain.SeverityCritical, domain.SeverityMajor:
			return domain.StatusDiscrepant
		default:
			needsReview = true
		}
	}

	if needsReview {
		return domain.StatusReview
	}
	return domain.StatusCompliant
}

// Score computes the compliance score on the normalized 0..1 scale: the
// share of applicable rules that were satisfied. A document with no
// applicable rules scores 1.
func Score(res rules.Result) float64 {
	if res.Evaluated == 0 {
		return 1.0
	}
	satisfied := 0
	for _, o := range res.Outcomes {
		if o.State == domain.RuleSatisfied {
			satisfied++
		}
	}
	score := float64(satisfied) / float64(res.Evaluated)
	return clamp01(score)
}

// FormatPercent renders a normalized 0..1 score as a whole percentage.
// Inputs outside the scale are clamped, so no rendering ever exceeds 100%.
func FormatPercent(score float64) string {
	pct := clamp01(score) * 100
	return fmt.Sprintf("%d%%", int(math.Round(pct)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
