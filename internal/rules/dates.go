package rules

import (
	"time"
)

// dateLayouts are the formats accepted for date-typed operands, tried in
// order. The two-digit-year SWIFT layout (YYMMDD) is the reason the century
// pivot below exists: a naive parse of "240115" must never land in 1924.
var dateLayouts = []struct {
	layout   string
	twoDigit bool
}{
	{time.RFC3339, false},
	{"2006-01-02", false},
	{"2006/01/02", false},
	{"02 Jan 2006", false},
	{"060102", true}, // SWIFT MT YYMMDD
	{"06-01-02", true},
}

// plausibilityYears bounds how far from "now" a parsed date may fall before
// it is rejected as implausible rather than silently compared. Trade
// documents reference dates a few years out at most; anything beyond this
// window is a parsing artifact, not a real tenor.
const plausibilityYears = 40

// ParseDate parses a date string with the century guard applied.
//
// Two-digit years are pivoted to whichever century places the date nearest
// now, so a year within +-2 of the current year always resolves to the
// current century. Any parsed date further than plausibilityYears from now
// is rejected with a DateError instead of being fed into a comparison.
func ParseDate(s string, now time.Time) (time.Time, error) {
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if l.twoDigit {
			t = pivotCentury(t, now)
		}
		if !plausible(t, now) {
			return time.Time{}, &DateError{Input: s, Reason: "date outside plausibility window"}
		}
		return t.UTC(), nil
	}
	return time.Time{}, &DateError{Input: s, Reason: "unrecognized date format"}
}

// pivotCentury shifts a two-digit-year parse to the century whose resulting
// year is closest to now. Go's own two-digit mapping is fixed at the 1969
// pivot, which is exactly the class of bug this guards against.
func pivotCentury(t, now time.Time) time.Time {
	best := t
	bestDiff := absInt(t.Year() - now.Year())
	for _, shift := range []int{-100, 100} {
		cand := t.AddDate(shift, 0, 0)
		if d := absInt(cand.Year() - now.Year()); d < bestDiff {
			best, bestDiff = cand, d
		}
	}
	return best
}

func plausible(t, now time.Time) bool {
	return absInt(t.Year()-now.Year()) <= plausibilityYears
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
