package rules

import (
	"fmt"
	"regexp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

// renderMessage substitutes every placeholder in an outcome template.
// Unknown placeholders are dropped rather than leaked: no message leaves
// the engine with an unresolved {token}.
func renderMessage(template string, vals map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		key := tok[1 : len(tok)-1]
		return vals[key]
	})
}

// fallbackMessage synthesizes a readable message for rules whose outcome
// template is empty.
func fallbackMessage(cond domain.Condition, actual, expected string) string {
	switch cond.Operator {
	case domain.OpExists:
		return fmt.Sprintf("required field %s is missing", cond.Field)
	case domain.OpNotExists:
		return fmt.Sprintf("field %s must not be present", cond.Field)
	default:
		return fmt.Sprintf("field %s: expected %s, got %s", cond.Field, expected, actual)
	}
}

// operandDisplay renders the right-hand side of a condition for messages.
func operandDisplay(cond domain.Condition, resolved domain.Value) string {
	switch cond.Operand.Kind {
	case domain.OperandFieldRef:
		return resolved.Display()
	case domain.OperandLiteral:
		return domain.ValueOf(cond.Operand.Literal).Display()
	default:
		return ""
	}
}
