// Package recurrence computes next occurrences for repeating reminders.
//
// Periods are fixed offsets: a month is always 30 days and a year 365 days,
// matching the persisted behavior this bot replaces. Recurring reminders
// therefore drift against the calendar over many cycles.
package recurrence

import (
	"fmt"
	"time"
)

// Kind is the persisted recurrence selector.
type Kind string

const (
	None    Kind = "no_repeat"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
)

// ParseKind validates a wire value. The empty string maps to None so older
// records without the field stay loadable.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return None, nil
	case None, Daily, Weekly, Monthly, Yearly:
		return Kind(s), nil
	}
	return None, fmt.Errorf("unknown recurrence %q", s)
}

func (k Kind) Valid() bool {
	switch k {
	case None, Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Repeats reports whether the kind re-arms after firing.
func (k Kind) Repeats() bool { return k.Valid() && k != None }

func (k Kind) period() time.Duration {
	switch k {
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	case Monthly:
		return 30 * 24 * time.Hour
	case Yearly:
		return 365 * 24 * time.Hour
	}
	return 0
}

// Next returns the occurrence one period after t. For None (or an invalid
// kind) it returns t unchanged; callers handle no-repeat before calling.
func Next(t time.Time, k Kind) time.Time {
	p := k.period()
	if p == 0 {
		return t
	}
	return t.Add(p)
}
