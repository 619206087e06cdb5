package rules

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Resolve walks a dotted path through the document context and returns the
// located value, or the absent marker when any segment is missing.
//
// Only path syntax can fail: an empty path or an empty segment ("a..b")
// returns a PathError. A path that lands on nothing, or that descends into
// a scalar, resolves to Absent so that exists / not_exists keep their
// meaning. Null intermediate values also resolve to Absent: a field below
// a null parent does not exist.
func Resolve(doc *domain.DocumentContext, path string) (domain.Value, error) {
	if path == "" {
		return domain.Absent(), &PathError{Path: path, Reason: "empty path"}
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return domain.Absent(), &PathError{Path: path, Reason: "empty segment"}
		}
	}

	current, ok := doc.Root()[segments[0]]
	if !ok {
		return domain.Absent(), nil
	}
	for _, seg := range segments[1:] {
		if current.Kind != domain.KindMap {
			// Scalar, list or null before the path is exhausted.
			return domain.Absent(), nil
		}
		next, ok := current.Map[seg]
		if !ok {
			return domain.Absent(), nil
		}
		current = next
	}
	return current, nil
}
