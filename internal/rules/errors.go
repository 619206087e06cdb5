package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// PathError reports malformed field path syntax (empty path or empty
// segment). An absent field is a normal resolution result, never an error.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid field path %q: %s", e.Path, e.Reason)
}

// TypeMismatchError reports an operator applied to operands of an
// incompatible type. The evaluator converts it into a fail-closed violation
// flagged as unevaluable, never into a silent pass.
type TypeMismatchError struct {
	Op     domain.Operator
	Kind   domain.Kind
	Detail string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("operator %s cannot evaluate %s operand: %s", e.Op, e.Kind, e.Detail)
}

// DateError reports a date that could not be parsed, or parsed to a value
// outside the plausibility window around the evaluation clock.
type DateError struct {
	Input  string
	Reason string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date %q: %s", e.Input, e.Reason)
}
