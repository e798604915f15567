package store

import (
	"errors"
	"time"

	"remindbot/internal/recurrence"
	"remindbot/internal/timeconv"
)

// ErrIndexOutOfRange reports a positional index past the end of an owner's
// reminder list. Surfaced to the dialog layer as "nothing to act on".
var ErrIndexOutOfRange = errors.New("reminder index out of range")

// Config configures the store.
//
// Driver values:
//   - "file" (or empty): two JSON snapshot files next to Path
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type Config struct {
	Driver string
	Path   string

	// DefaultTimezone is returned for owners without a saved preference.
	DefaultTimezone string

	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one reminder owned by a user.
//
// It is created as a draft holding only Text and filled field-by-field
// through the guided flow. The wire shape (JSON keys and the YYYY-MM-DD date
// string) is the persisted format.
type Record struct {
	Text   string          `json:"text"`
	Date   string          `json:"date,omitempty"`
	Hour   *int            `json:"hour,omitempty"`
	Minute *int            `json:"minute,omitempty"`
	Repeat recurrence.Kind `json:"repeat,omitempty"`
}

// Stage is the explicit record lifecycle state.
type Stage int

const (
	// StageDraft lacks a date, hour or minute and must not be scheduled.
	StageDraft Stage = iota
	// StageComplete has date, hour and minute and is eligible for scheduling.
	StageComplete
)

func (r Record) Stage() Stage {
	if r.Date == "" || r.Hour == nil || r.Minute == nil {
		return StageDraft
	}
	return StageComplete
}

func (r Record) Complete() bool { return r.Stage() == StageComplete }

// When returns the civil fire time. ok is false for drafts and for records
// whose persisted date does not parse (treated as drafts, never scheduled).
func (r Record) When() (d timeconv.Date, hour, minute int, ok bool) {
	if !r.Complete() {
		return timeconv.Date{}, 0, 0, false
	}
	d, err := timeconv.ParseDate(r.Date)
	if err != nil {
		return timeconv.Date{}, 0, 0, false
	}
	return d, *r.Hour, *r.Minute, true
}

// snapshot is the full persisted state handed to a backend on every mutation.
type snapshot struct {
	Reminders map[int64][]Record
	Timezones map[int64]string
}

func (s snapshot) clone() snapshot {
	out := snapshot{
		Reminders: make(map[int64][]Record, len(s.Reminders)),
		Timezones: make(map[int64]string, len(s.Timezones)),
	}
	for owner, list := range s.Reminders {
		cp := make([]Record, len(list))
		copy(cp, list)
		out.Reminders[owner] = cp
	}
	for owner, tz := range s.Timezones {
		out.Timezones[owner] = tz
	}
	return out
}

// backend is a persistence driver. Load is called once at startup, Save on
// every mutation (write-through, full snapshot).
type backend interface {
	Load() (snapshot, error)
	Save(snapshot) error
	Close() error
}

func kindOrNone(s string) recurrence.Kind {
	k, err := recurrence.ParseKind(s)
	if err != nil {
		return recurrence.None
	}
	return k
}
