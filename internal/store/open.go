package store

import (
	"errors"
	"strings"

	logx "remindbot/pkg/logx"
)

func openBackend(cfg Config, log logx.Logger) (backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
