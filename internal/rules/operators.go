package rules

import (
	"regexp"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Apply evaluates one condition's operator against the resolved left-hand
// value and right-hand operand value. The operator set is closed; every
// member is handled here, and the compiler keeps it that way when the enum
// grows.
//
// Type errors are returned, never swallowed: the evaluator converts them
// into fail-closed violations flagged as unevaluable.
func Apply(cond domain.Condition, left, right domain.Value, now time.Time) (bool, error) {
	switch cond.Operator {
	case domain.OpExists:
		return left.Present(), nil
	case domain.OpNotExists:
		return !left.Present(), nil
	case domain.OpEquals:
		return valuesEqual(left, right, now), nil
	case domain.OpNotEquals:
		return !valuesEqual(left, right, now), nil
	case domain.OpContains:
		return applyContains(cond.Operator, left, right, now)
	case domain.OpMatches:
		return applyMatches(cond.Operator, left, right)
	case domain.OpIn:
		return applyIn(cond.Operator, left, right, now)
	case domain.OpNotIn:
		ok, err := applyIn(cond.Operator, left, right, now)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case domain.OpBefore:
		l, r, err := datePair(cond.Operator, left, right, now)
		if err != nil {
			return false, err
		}
		return l.Before(r), nil
	case domain.OpAfter:
		l, r, err := datePair(cond.Operator, left, right, now)
		if err != nil {
			return false, err
		}
		return l.After(r), nil
	case domain.OpWithinDays:
		l, r, err := datePair(cond.Operator, left, right, now)
		if err != nil {
			return false, err
		}
		dayType := cond.DayType
		if dayType == "" {
			dayType = domain.DayTypeCalendar
		}
		return DaysBetween(l, r, dayType) <= cond.WithinDays, nil
	default:
		// Unreachable for validated rulesets.
		return false, &TypeMismatchError{Op: cond.Operator, Kind: left.Kind, Detail: "unknown operator"}
	}
}

// valuesEqual implements the document context's native equality. Kinds that
// do not match are simply not equal; equality never errors.
func valuesEqual(a, b domain.Value, now time.Time) bool {
	// A string on one side and a date on the other compares as a date when
	// the string parses cleanly. Anything else stays kind-strict.
	if ad, ok := asDate(a, now); ok {
		if bd, okb := asDate(b, now); okb {
			return ad.Equal(bd)
		}
		return false
	}

	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case domain.KindString:
		return a.Str == b.Str
	case domain.KindNumber:
		return a.Num == b.Num
	case domain.KindBool:
		return a.Bool == b.Bool
	case domain.KindNull:
		return true
	default:
		// Lists, maps and absent values never compare equal.
		return false
	}
}

func applyContains(op domain.Operator, left, right domain.Value, now time.Time) (bool, error) {
	switch left.Kind {
	case domain.KindString:
		if right.Kind != domain.KindString {
			return false, &TypeMismatchError{Op: op, Kind: right.Kind, Detail: "substring operand must be a string"}
		}
		return strings.Contains(left.Str, right.Str), nil
	case domain.KindList:
		for _, elem := range left.List {
			if valuesEqual(elem, right, now) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &TypeMismatchError{Op: op, Kind: left.Kind, Detail: "left operand must be a string or a list"}
	}
}

func applyMatches(op domain.Operator, left, right domain.Value) (bool, error) {
	if left.Kind != domain.KindString {
		return false, &TypeMismatchError{Op: op, Kind: left.Kind, Detail: "left operand must be a string"}
	}
	if right.Kind != domain.KindString {
		return false, &TypeMismatchError{Op: op, Kind: right.Kind, Detail: "pattern must be a string"}
	}
	re, err := regexp.Compile(right.Str)
	if err != nil {
		return false, &TypeMismatchError{Op: op, Kind: right.Kind, Detail: "invalid pattern: " + err.Error()}
	}
	return re.MatchString(left.Str), nil
}

func applyIn(op domain.Operator, left, right domain.Value, now time.Time) (bool, error) {
	if right.Kind != domain.KindList {
		return false, &TypeMismatchError{Op: op, Kind: right.Kind, Detail: "operand must be a list"}
	}
	for _, elem := range right.List {
		if valuesEqual(left, elem, now) {
			return true, nil
		}
	}
	return false, nil
}

// datePair coerces both operands to dates for the date-ordered operators.
func datePair(op domain.Operator, left, right domain.Value, now time.Time) (time.Time, time.Time, error) {
	l, err := coerceDate(op, left, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	r, err := coerceDate(op, right, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return l, r, nil
}

// coerceDate accepts date values directly and date-shaped strings through
// the century-guarded parser. Everything else is a type error.
func coerceDate(op domain.Operator, v domain.Value, now time.Time) (time.Time, error) {
	switch v.Kind {
	case domain.KindDate:
		return v.Date, nil
	case domain.KindString:
		t, err := ParseDate(v.Str, now)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	default:
		return time.Time{}, &TypeMismatchError{Op: op, Kind: v.Kind, Detail: "operand is not a date"}
	}
}

// asDate is the non-erroring probe used by equality.
func asDate(v domain.Value, now time.Time) (time.Time, bool) {
	switch v.Kind {
	case domain.KindDate:
		return v.Date, true
	case domain.KindString:
		t, err := ParseDate(v.Str, now)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
