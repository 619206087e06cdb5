package rules

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DaysBetween returns the absolute distance between two dates under the
// given day-counting convention. Calendar days count every day; banking
// days exclude Saturdays and Sundays. Times of day are ignored.
func DaysBetween(a, b time.Time, dayType domain.DayType) int {
	a, b = truncateDay(a), truncateDay(b)
	if a.After(b) {
		a, b = b, a
	}
	if dayType == domain.DayTypeBanking {
		return bankingDays(a, b)
	}
	return int(b.Sub(a).Hours() / 24)
}

// bankingDays counts the weekdays stepped onto while walking from a to b
// exclusive of a, inclusive of b.
func bankingDays(a, b time.Time) int {
	count := 0
	for d := a.AddDate(0, 0, 1); !d.After(b); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
