package timeconv

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTimeZone reports an unrecognized IANA zone name.
	ErrInvalidTimeZone = errors.New("invalid time zone")
	// ErrInvalidCivilTime reports an out-of-range hour/minute or a calendar
	// date that does not exist.
	ErrInvalidCivilTime = errors.New("invalid civil time")
)

const dateLayout = "2006-01-02"

// Date is a civil calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses "YYYY-MM-DD" (the persisted wire format).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidCivilTime, s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// Valid reports whether the date exists on the calendar.
// time.Date normalizes overflow (Feb 30 becomes Mar 1/2), so a date is valid
// exactly when construction round-trips to the same components.
func (d Date) Valid() bool {
	if d.Year <= 0 || d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return t.Year() == d.Year && t.Month() == d.Month && t.Day() == d.Day
}

// ToAbsolute interprets the civil time as local wall-clock in tz and returns
// the corresponding absolute instant.
func ToAbsolute(d Date, hour, minute int, tz string) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidCivilTime, hour, minute)
	}
	if !d.Valid() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidCivilTime, d)
	}
	loc, err := loadZone(tz)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, loc), nil
}

// ToLocal is the inverse projection of ToAbsolute, for display purposes.
func ToLocal(t time.Time, tz string) (Date, int, int, error) {
	loc, err := loadZone(tz)
	if err != nil {
		return Date{}, 0, 0, err
	}
	lt := t.In(loc)
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}, lt.Hour(), lt.Minute(), nil
}

func loadZone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTimeZone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeZone, tz)
	}
	return loc, nil
}
