package store

import (
	"sort"
	"strings"
	"sync"

	logx "remindbot/pkg/logx"

	"remindbot/internal/recurrence"
	"remindbot/internal/timeconv"
)

// Store owns all reminder records and per-user timezone preferences.
//
// Every mutating call persists the full snapshot before returning. A write
// failure is logged and the in-memory state stays authoritative for the
// current process lifetime; a restart may then lose the unsaved mutation.
type Store struct {
	log   logx.Logger
	defTZ string

	mu   sync.Mutex
	data snapshot
	be   backend
}

// Open loads persisted state through the configured driver. Missing state is
// an empty store; malformed state is logged and replaced with an empty store
// rather than failing startup.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	defTZ := strings.TrimSpace(cfg.DefaultTimezone)
	if defTZ == "" {
		defTZ = "Europe/Moscow"
	}

	be, err := openBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	snap, err := be.Load()
	if err != nil {
		log.Warn("persisted state unreadable, starting empty", logx.Err(err))
		snap = snapshot{}
	}
	if snap.Reminders == nil {
		snap.Reminders = map[int64][]Record{}
	}
	if snap.Timezones == nil {
		snap.Timezones = map[int64]string{}
	}

	return &Store{log: log, defTZ: defTZ, data: snap, be: be}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	be := s.be
	s.be = nil
	s.mu.Unlock()
	if be == nil {
		return nil
	}
	return be.Close()
}

// CreateDraft appends a draft record holding only text and returns its index.
func (s *Store) CreateDraft(owner int64, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Reminders[owner] = append(s.data.Reminders[owner], Record{Text: text})
	idx := len(s.data.Reminders[owner]) - 1
	s.persistLocked()
	return idx, nil
}

func (s *Store) SetDate(owner int64, index int, d timeconv.Date) error {
	return s.mutate(owner, index, func(r *Record) { r.Date = d.String() })
}

func (s *Store) SetHour(owner int64, index, hour int) error {
	return s.mutate(owner, index, func(r *Record) { h := hour; r.Hour = &h })
}

func (s *Store) SetMinute(owner int64, index, minute int) error {
	return s.mutate(owner, index, func(r *Record) { m := minute; r.Minute = &m })
}

func (s *Store) SetRepeat(owner int64, index int, k recurrence.Kind) error {
	return s.mutate(owner, index, func(r *Record) { r.Repeat = k })
}

func (s *Store) mutate(owner int64, index int, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data.Reminders[owner]
	if index < 0 || index >= len(list) {
		return ErrIndexOutOfRange
	}
	fn(&list[index])
	s.persistLocked()
	return nil
}

// List returns a copy of the owner's ordered reminder list.
func (s *Store) List(owner int64) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data.Reminders[owner]
	out := make([]Record, len(list))
	copy(out, list)
	return out
}

func (s *Store) Get(owner int64, index int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data.Reminders[owner]
	if index < 0 || index >= len(list) {
		return Record{}, false
	}
	return list[index], true
}

func (s *Store) Len(owner int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Reminders[owner])
}

// Owners returns all owner ids with at least one record, sorted for stable
// iteration during restore.
func (s *Store) Owners() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.data.Reminders))
	for owner, list := range s.data.Reminders {
		if len(list) > 0 {
			out = append(out, owner)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Remove deletes the record at index and shifts later records down by one.
func (s *Store) Remove(owner int64, index int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data.Reminders[owner]
	if index < 0 || index >= len(list) {
		return Record{}, ErrIndexOutOfRange
	}
	removed := list[index]
	list = append(list[:index], list[index+1:]...)
	if len(list) == 0 {
		delete(s.data.Reminders, owner)
	} else {
		s.data.Reminders[owner] = list
	}
	s.persistLocked()
	return removed, nil
}

func (s *Store) SetTimezone(owner int64, tz string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Timezones[owner] = tz
	s.persistLocked()
	return nil
}

// Timezone returns the owner's preference or the configured default.
func (s *Store) Timezone(owner int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tz, ok := s.data.Timezones[owner]; ok && strings.TrimSpace(tz) != "" {
		return tz
	}
	return s.defTZ
}

// persistLocked writes through the full snapshot. Call with s.mu held.
func (s *Store) persistLocked() {
	if s.be == nil {
		return
	}
	if err := s.be.Save(s.data.clone()); err != nil {
		// In-memory state stays authoritative; a restart may lose this mutation.
		s.log.Warn("persist failed", logx.Err(err))
	}
}
