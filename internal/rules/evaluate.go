// Package rules implements the Kestrel rule evaluation engine: field path
// resolution over the typed document context, the closed operator library,
// and the per-rule evaluation state machine.
package rules

import (
	"errors"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion is stamped into report metadata for audit traceability.
const EngineVersion = "kestrel-engine/1.0"

// Evaluator runs rulesets against document contexts. It holds no mutable
// state; the injected clock anchors date plausibility checks and makes
// evaluation reproducible in tests.
type Evaluator struct {
	clock func() time.Time
}

// NewEvaluator creates an evaluator. A nil clock defaults to time.Now.
func NewEvaluator(clock func() time.Time) *Evaluator {
	if clock == nil {
		clock = time.Now
	}
	return &Evaluator{clock: clock}
}

// RuleOutcome is the terminal record for one rule.
type RuleOutcome struct {
	RuleID    string
	State     domain.RuleState
	Violation *domain.Violation
	Errors    []domain.EvaluationError
}

// Result aggregates one full ruleset evaluation. Outcomes, Violations and
// Errors all follow ruleset order, so evaluating the same inputs twice
// yields byte-identical results.
type Result struct {
	RulesetVersion string
	Outcomes       []RuleOutcome
	Violations     []domain.Violation
	Errors         []domain.EvaluationError
	Evaluated      int
	Skipped        int
}

// EvaluateRuleset runs every rule of the ruleset against the document
// context. Rules are independent: a rule that cannot be evaluated is
// recorded and the remaining rules still run. The ruleset is never
// mutated and the document context is read-only.
func (e *Evaluator) EvaluateRuleset(rs *domain.Ruleset, doc *domain.DocumentContext) Result {
	now := e.clock()
	res := Result{RulesetVersion: rs.RulesetVersion}

	for i := range rs.Rules {
		outcome := e.evaluateRule(&rs.Rules[i], doc, rs.RulesetVersion, now)
		res.Outcomes = append(res.Outcomes, outcome)
		res.Errors = append(res.Errors, outcome.Errors...)
		switch outcome.State {
		case domain.RuleSkipped:
			res.Skipped++
		default:
			res.Evaluated++
		}
		if outcome.Violation != nil {
			res.Violations = append(res.Violations, *outcome.Violation)
		}
	}
	return res
}

// evaluateRule walks the per-rule state machine:
//
//	PENDING -> SKIPPED            when an applies_if precondition fails
//	PENDING -> SATISFIED          when every condition holds
//	PENDING -> VIOLATED           on the first failing condition
//
// A skipped rule contributes nothing to the report, not even a satisfied
// record.
func (e *Evaluator) evaluateRule(rule *domain.Rule, doc *domain.DocumentContext, version string, now time.Time) RuleOutcome {
	outcome := RuleOutcome{RuleID: rule.RuleID}

	// Applicability gate. An unevaluable precondition cannot establish
	// applicability, so the rule is skipped with the error recorded.
	for i, cond := range rule.AppliesIf {
		pass, _, _, err := e.evaluateCondition(cond, doc, now)
		if err != nil {
			outcome.Errors = append(outcome.Errors, evalError(rule.RuleID, i, err))
			outcome.State = domain.RuleSkipped
			return outcome
		}
		if !pass {
			outcome.State = domain.RuleSkipped
			return outcome
		}
	}

	// Main conditions: all must hold. Short-circuit on the first failure;
	// conditions are pure so order cannot change the verdict.
	for i, cond := range rule.Conditions {
		pass, actual, expected, err := e.evaluateCondition(cond, doc, now)
		if err != nil {
			// Fail closed: an unevaluable condition never silently
			// passes, but the violation is flagged so operators can
			// tell it apart from a genuine discrepancy.
			outcome.Errors = append(outcome.Errors, evalError(rule.RuleID, i, err))
			if isPathError(err) {
				// Malformed paths are a ruleset defect, surfaced as a
				// setup error rather than a compliance finding.
				outcome.State = domain.RuleSkipped
				return outcome
			}
			outcome.State = domain.RuleViolated
			outcome.Violation = e.buildViolation(rule, cond, actual, expected, version, true)
			return outcome
		}
		if !pass {
			outcome.State = domain.RuleViolated
			outcome.Violation = e.buildViolation(rule, cond, actual, expected, version, false)
			return outcome
		}
	}

	outcome.State = domain.RuleSatisfied
	return outcome
}

// evaluateCondition resolves the field, resolves the operand, and applies
// the operator. Returns the rendered actual/expected values for message
// substitution alongside the verdict.
func (e *Evaluator) evaluateCondition(cond domain.Condition, doc *domain.DocumentContext, now time.Time) (pass bool, actual, expected string, err error) {
	left, err := Resolve(doc, cond.Field)
	if err != nil {
		return false, "", "", err
	}

	var right domain.Value
	switch cond.Operand.Kind {
	case domain.OperandFieldRef:
		right, err = Resolve(doc, cond.Operand.FieldRef)
		if err != nil {
			return false, left.Display(), "", err
		}
	case domain.OperandLiteral:
		right = domain.ValueOf(cond.Operand.Literal)
	default:
		right = domain.Absent()
	}

	actual = left.Display()
	expected = operandDisplay(cond, right)

	pass, err = Apply(cond, left, right, now)
	return pass, actual, expected, err
}

func (e *Evaluator) buildViolation(rule *domain.Rule, cond domain.Condition, actual, expected, version string, unevaluable bool) *domain.Violation {
	msg := rule.Outcome.Invalid
	if msg == "" {
		msg = fallbackMessage(cond, actual, expected)
	} else {
		msg = renderMessage(msg, map[string]string{
			"field":    cond.Field,
			"actual":   actual,
			"expected": expected,
			"value":    expected,
			"rule_id":  rule.RuleID,
			"severity": string(rule.Severity),
		})
	}
	return &domain.Violation{
		RuleID:         rule.RuleID,
		Severity:       rule.Severity,
		Message:        msg,
		Field:          cond.Field,
		Expected:       expected,
		Actual:         actual,
		RulesetVersion: version,
		Unevaluable:    unevaluable,
	}
}

func evalError(ruleID string, condition int, err error) domain.EvaluationError {
	return domain.EvaluationError{
		RuleID:    ruleID,
		Condition: condition,
		Class:     classify(err),
		Detail:    err.Error(),
	}
}

func classify(err error) domain.EvaluationErrorClass {
	var pe *PathError
	var de *DateError
	switch {
	case errors.As(err, &pe):
		return domain.ErrorClassPath
	case errors.As(err, &de):
		return domain.ErrorClassDate
	default:
		return domain.ErrorClassType
	}
}

func isPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}
