package domain

import "fmt"

// Operator names the comparison applied by a condition.
// The set is closed: rulesets referencing an unknown operator are rejected
// at load time rather than silently skipped at evaluation time.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpMatches    Operator = "matches"
	OpWithinDays Operator = "within_days"
	OpBefore     Operator = "before"
	OpAfter      Operator = "after"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpExists     Operator = "exists"
	OpNotExists  Operator = "not_exists"
)

// allOperators is the authoritative operator set for validation.
var allOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpMatches: true,
	OpWithinDays: true, OpBefore: true, OpAfter: true, OpIn: true,
	OpNotIn: true, OpExists: true, OpNotExists: true,
}

// Valid reports whether op is a member of the known operator set.
func (op Operator) Valid() bool {
	return allOperators[op]
}

// DayType selects the day-counting convention for date-tolerance operators.
type DayType string

const (
	// DayTypeCalendar counts every day.
	DayTypeCalendar DayType = "calendar"

	// DayTypeBanking excludes Saturdays and Sundays.
	DayTypeBanking DayType = "banking"
)

// Severity classifies how serious a violated rule is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Rank orders severities for report reconciliation. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// OperandKind tags the right-hand side of a condition.
type OperandKind string

const (
	// OperandLiteral compares against an inline literal value.
	OperandLiteral OperandKind = "literal"

	// OperandFieldRef compares against another field of the same
	// document context, resolved at evaluation time.
	OperandFieldRef OperandKind = "field_ref"

	// OperandNone is used by existence checks, which ignore the operand.
	OperandNone OperandKind = "none"
)

// Operand is the tagged right-hand side of a condition: either a literal
// or a cross-reference to another document field, never both.
type Operand struct {
	Kind     OperandKind `json:"kind"`
	Literal  any         `json:"literal,omitempty"`
	FieldRef string      `json:"fieldRef,omitempty"`
}

// Literal builds a literal operand.
func Literal(v any) Operand {
	return Operand{Kind: OperandLiteral, Literal: v}
}

// FieldRef builds a field-reference operand.
func FieldRef(path string) Operand {
	return Operand{Kind: OperandFieldRef, FieldRef: path}
}

// NoOperand builds the empty operand used by exists / not_exists.
func NoOperand() Operand {
	return Operand{Kind: OperandNone}
}

// Condition is one atomic comparison against a document field.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Operand  Operand  `json:"operand"`

	// DayType applies to within_days only; empty means calendar.
	DayType DayType `json:"dayType,omitempty"`

	// WithinDays is the day tolerance for the within_days operator.
	WithinDays int `json:"withinDays,omitempty"`
}

// Validate checks structural sanity of a condition at ruleset load time.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	switch c.Operator {
	case OpExists, OpNotExists:
		// Operand is ignored.
		return nil
	case OpIn, OpNotIn:
		if c.Operand.Kind != OperandLiteral {
			return fmt.Errorf("operator %q requires a literal list operand", c.Operator)
		}
	case OpWithinDays:
		if c.WithinDays < 0 {
			return fmt.Errorf("within_days tolerance must be >= 0")
		}
		if c.DayType != "" && c.DayType != DayTypeCalendar && c.DayType != DayTypeBanking {
			return fmt.Errorf("unknown day type %q", c.DayType)
		}
		if c.Operand.Kind != OperandLiteral && c.Operand.Kind != OperandFieldRef {
			return fmt.Errorf("operator %q requires a literal or field_ref operand", c.Operator)
		}
	default:
		if c.Operand.Kind != OperandLiteral && c.Operand.Kind != OperandFieldRef {
			return fmt.Errorf("operator %q requires a literal or field_ref operand", c.Operator)
		}
	}
	return nil
}

// Outcome holds the human-readable message templates for a rule.
// Templates may reference {field}, {expected}, {actual} and {value};
// the evaluator substitutes every placeholder before a message leaves
// the engine.
type Outcome struct {
	Valid   string `json:"valid"`
	Invalid string `json:"invalid"`
}

// Rule is one row of compliance logic within a ruleset.
type Rule struct {
	RuleID       string `json:"ruleId"`
	DocumentType string `json:"documentType"`
	Description  string `json:"description,omitempty"`

	// AppliesIf gates the whole rule: if any precondition fails the rule
	// is skipped, contributing nothing to the report.
	AppliesIf []Condition `json:"appliesIf,omitempty"`

	// Conditions must all hold for the rule to be satisfied.
	Conditions []Condition `json:"conditions"`

	Severity Severity `json:"severity"`
	Outcome  Outcome  `json:"expectedOutcome"`
}

// Validate checks a rule and all its conditions.
func (r Rule) Validate() error {
	if r.RuleID == "" {
		return fmt.Errorf("ruleId is required")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: at least one condition is required", r.RuleID)
	}
	switch r.Severity {
	case SeverityCritical, SeverityMajor, SeverityMinor:
	default:
		return fmt.Errorf("rule %s: unknown severity %q", r.RuleID, r.Severity)
	}
	for i, c := range r.AppliesIf {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %s: applies_if[%d]: %w", r.RuleID, i, err)
		}
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %s: conditions[%d]: %w", r.RuleID, i, err)
		}
	}
	return nil
}
