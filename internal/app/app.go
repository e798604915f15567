// Package app wires the reminder bot together: config, logging, store,
// scheduler, notification sink and the Telegram transport, plus the
// background jobs (periodic resync, config watch).
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/notify"
	"remindbot/internal/scheduler"
	"remindbot/internal/store"
)

type App struct {
	cfgPath string

	log  logx.Logger
	logs *logx.Service

	store *store.Store
	sched *scheduler.Service
	bot   *bot.Bot
	cron  *cron.Cron

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func NewApp(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := parseDurationOrDefault("store.busy_timeout", cfg.Store.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:          cfg.Store.Driver,
		Path:            cfg.Store.Path,
		DefaultTimezone: cfg.Store.DefaultTimezone,
		BusyTimeout:     busyTimeout,
	}, logSvc.Logger().With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	// The scheduler delivers through the bot, and the bot's dialog schedules
	// through the scheduler. Break the cycle by creating the bot first and
	// injecting the scheduler before Start.
	b, err := bot.New(bot.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		Timezones:   cfg.Timezones,
	}, st, nil, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	sink := notify.New(notify.Config{
		RatePerSec:       cfg.Notify.RatePerSec,
		PrimaryTemplate:  cfg.Notify.PrimaryTemplate,
		FollowUpTemplate: cfg.Notify.FollowUpTemplate,
		ImageURLs:        cfg.Notify.Images,
	}, b, logSvc.Logger().With(logx.String("comp", "notify")))

	sched := scheduler.New(st, sink, logSvc.Logger().With(logx.String("comp", "scheduler")))
	b.SetScheduler(sched)

	a := &App{
		cfgPath: cfgPath,
		log:     log,
		logs:    logSvc,
		store:   st,
		sched:   sched,
		bot:     b,
	}

	if spec := strings.TrimSpace(cfg.Scheduler.Resync); spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			sched.Resync(ctx)
		}); err != nil {
			_ = st.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("scheduler.resync spec %q: %w", spec, err)
		}
		a.cron = c
	}

	return a, nil
}

// Start restores persisted reminders, begins polling Telegram and launches
// the background jobs. It does not block.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.RestoreAll(ctx); err != nil {
		return fmt.Errorf("restore reminders: %w", err)
	}
	if err := a.bot.Start(ctx); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	if a.cron != nil {
		a.cron.Start()
	}

	wctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		config.Watch(wctx, a.cfgPath, a.log.With(logx.String("comp", "configwatch")), a.applyReload)
	}()

	a.log.Info("started")
	return nil
}

// applyReload hot-applies the sections that are safe to change at runtime.
// Only logging qualifies; everything else needs a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.log.Info("logging config re-applied", logx.String("level", cfg.Logging.Level))
}

// Stop shuts down in dependency order: stop taking input (poller), stop
// background jobs, then stop timers, then close persistence.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
		a.watchCancel = nil
	}
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}

	err := a.bot.Stop(ctx)

	a.sched.StopAll()

	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func parseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", key, raw)
	}
	return d, nil
}
