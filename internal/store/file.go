package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	logx "remindbot/pkg/logx"
)

// fileBackend is the dependency-free persistence driver.
//
// Files:
//   - <prefix>.reminders.json  (owner id (string) -> ordered record list)
//   - <prefix>.timezones.json  (owner id (integer) -> IANA zone name)
//
// Each Save rewrites both files atomically (tmp + rename).
type fileBackend struct {
	log logx.Logger

	remindersPath string
	timezonesPath string
}

func openFile(cfg Config, log logx.Logger) (backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for the file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &fileBackend{
		log:           log,
		remindersPath: prefix + ".reminders.json",
		timezonesPath: prefix + ".timezones.json",
	}, nil
}

func (b *fileBackend) Close() error { return nil }

func (b *fileBackend) Load() (snapshot, error) {
	snap := snapshot{
		Reminders: map[int64][]Record{},
		Timezones: map[int64]string{},
	}

	// Both files tolerate being absent (first run) and fail soft on
	// malformed content: log, keep whatever parsed, continue.
	if err := b.loadReminders(snap.Reminders); err != nil {
		b.log.Warn("reminder file unreadable, ignoring", logx.String("path", b.remindersPath), logx.Err(err))
	}
	if err := b.loadTimezones(snap.Timezones); err != nil {
		b.log.Warn("timezone file unreadable, ignoring", logx.String("path", b.timezonesPath), logx.Err(err))
	}
	return snap, nil
}

func (b *fileBackend) loadReminders(out map[int64][]Record) error {
	raw, err := os.ReadFile(b.remindersPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var m map[string][]Record
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for key, list := range m {
		owner, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			b.log.Warn("skipping non-numeric owner key", logx.String("key", key))
			continue
		}
		out[owner] = list
	}
	return nil
}

func (b *fileBackend) loadTimezones(out map[int64]string) error {
	raw, err := os.ReadFile(b.timezonesPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for key, tz := range m {
		owner, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			b.log.Warn("skipping non-numeric owner key", logx.String("key", key))
			continue
		}
		out[owner] = tz
	}
	return nil
}

func (b *fileBackend) Save(snap snapshot) error {
	reminders := make(map[string][]Record, len(snap.Reminders))
	for owner, list := range snap.Reminders {
		reminders[strconv.FormatInt(owner, 10)] = list
	}
	timezones := make(map[string]string, len(snap.Timezones))
	for owner, tz := range snap.Timezones {
		timezones[strconv.FormatInt(owner, 10)] = tz
	}

	if err := writeJSONAtomic(b.remindersPath, reminders); err != nil {
		return fmt.Errorf("write reminders: %w", err)
	}
	if err := writeJSONAtomic(b.timezonesPath, timezones); err != nil {
		return fmt.Errorf("write timezones: %w", err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
