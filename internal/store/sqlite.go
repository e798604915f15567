//go:build sqlite
// +build sqlite

package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteBackend struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	b := &sqliteBackend{db: db, log: log}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqliteBackend) migrate() error {
	raw, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = b.db.Exec(string(raw))
	return err
}

func (b *sqliteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *sqliteBackend) Load() (snapshot, error) {
	snap := snapshot{
		Reminders: map[int64][]Record{},
		Timezones: map[int64]string{},
	}

	rows, err := b.db.Query(`SELECT owner, text, date, hour, minute, repeat FROM reminders ORDER BY owner, pos`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			owner        int64
			text         string
			date, repeat sql.NullString
			hour, minute sql.NullInt64
		)
		if err := rows.Scan(&owner, &text, &date, &hour, &minute, &repeat); err != nil {
			return snap, err
		}
		r := Record{Text: text, Date: date.String}
		if hour.Valid {
			h := int(hour.Int64)
			r.Hour = &h
		}
		if minute.Valid {
			m := int(minute.Int64)
			r.Minute = &m
		}
		r.Repeat = kindOrNone(repeat.String)
		snap.Reminders[owner] = append(snap.Reminders[owner], r)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	tzRows, err := b.db.Query(`SELECT owner, tz FROM timezones`)
	if err != nil {
		return snap, err
	}
	defer tzRows.Close()
	for tzRows.Next() {
		var owner int64
		var tz string
		if err := tzRows.Scan(&owner, &tz); err != nil {
			return snap, err
		}
		snap.Timezones[owner] = tz
	}
	return snap, tzRows.Err()
}

// Save replaces the whole snapshot in one transaction. The store writes
// through on every mutation, so a full rewrite keeps both drivers identical
// in semantics.
func (b *sqliteBackend) Save(snap snapshot) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM reminders`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM timezones`); err != nil {
		return err
	}

	for owner, list := range snap.Reminders {
		for pos, r := range list {
			var hour, minute any
			if r.Hour != nil {
				hour = *r.Hour
			}
			if r.Minute != nil {
				minute = *r.Minute
			}
			if _, err := tx.Exec(
				`INSERT INTO reminders(owner, pos, text, date, hour, minute, repeat) VALUES(?,?,?,?,?,?,?)`,
				owner, pos, r.Text, r.Date, hour, minute, string(r.Repeat),
			); err != nil {
				return err
			}
		}
	}
	for owner, tz := range snap.Timezones {
		if _, err := tx.Exec(`INSERT INTO timezones(owner, tz) VALUES(?,?)`, owner, tz); err != nil {
			return err
		}
	}
	return tx.Commit()
}
