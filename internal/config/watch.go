package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

// Watch re-parses the config when the file changes and calls onReload with
// each successfully parsed, content-changed config. Parse failures are
// logged and the previous config stays in effect. Blocks until ctx is done.
//
// The reminder bot only hot-applies the logging section; everything else
// (token, store driver, catalog) takes effect on restart.
func Watch(ctx context.Context, path string, log logx.Logger, onReload func(*Config)) {
	dir := filepath.Dir(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
		return
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
		return
	}
	log.Debug("config watcher started", logx.String("path", path))

	var lastHash uint64
	if cfg, err := Load(path); err == nil {
		lastHash = hashConfig(cfg)
	}

	// Debounce to avoid reacting to partial editor writes.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload failed, keeping previous", logx.String("path", path), logx.Err(err))
			return
		}
		h := hashConfig(cfg)
		if h != 0 && h == lastHash {
			return
		}
		lastHash = h
		log.Info("config reloaded", logx.String("path", path))
		onReload(cfg)
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn("config watch error", logx.Err(err))
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
