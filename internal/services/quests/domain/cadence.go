package domain

import (
	"strings"
	"time"
)

// Cadence identifies the recurring calendar window a quest runs over.
type Cadence string

const (
	// CadenceWeekly is an ISO week window, Monday 00:00 UTC anchored.
	CadenceWeekly Cadence = "WEEKLY"
	// CadenceMonthly is a calendar month window in UTC.
	CadenceMonthly Cadence = "MONTHLY"
)

// ParseCadence normalizes and validates a cadence token.
func ParseCadence(raw string) (Cadence, error) {
	switch Cadence(strings.ToUpper(strings.TrimSpace(raw))) {
	case CadenceWeekly:
		return CadenceWeekly, nil
	case CadenceMonthly:
		return CadenceMonthly, nil
	default:
		return "", ErrCadenceInvalid
	}
}

// Period is one half-open quest window [Start, End) in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether instant falls inside the window.
func (p Period) Contains(instant time.Time) bool {
	instant = instant.UTC()
	return !instant.Before(p.Start) && instant.Before(p.End)
}

// PeriodFor maps an instant to the calendar window that contains it.
//
// The mapping is pure and deterministic: every instant inside one window
// yields bit-identical bounds, which is what lets progress rows for the same
// window coalesce on their identity key. An instant exactly on a boundary
// belongs to the window that starts there.
func PeriodFor(cadence Cadence, instant time.Time) Period {
	instant = instant.UTC()
	switch cadence {
	case CadenceMonthly:
		start := time.Date(instant.Year(), instant.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}
	case CadenceWeekly:
		midnight := time.Date(instant.Year(), instant.Month(), instant.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday has Sunday=0; remap so Monday=0 .. Sunday=6.
		offset := (int(midnight.Weekday()) + 6) % 7
		start := midnight.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 7)}
	default:
		return Period{}
	}
}
