//go:build !sqlite
// +build !sqlite

package store

import (
	"errors"

	logx "remindbot/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (backend, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite store not built: build with -tags sqlite")
}
