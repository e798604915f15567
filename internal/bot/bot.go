// Package bot is the Telegram surface: the long-poll lifecycle, the guided
// reminder conversation (inline keyboards all the way down) and the outbound
// Messenger the notification sink delivers through.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "remindbot/pkg/logx"

	"remindbot/internal/config"
	"remindbot/internal/scheduler"
	"remindbot/internal/store"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	Timezones   []config.TimezoneEntry
}

// Bot is the Telegram transport: long-poll lifecycle, the guided reminder
// conversation, and the Messenger surface the notification sink sends
// through.
type Bot struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	store   *store.Store
	sched   *scheduler.Service
	catalog []config.TimezoneEntry

	mu       sync.Mutex
	sessions map[int64]*session

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, st *store.Store, sched *scheduler.Service, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	catalog := cfg.Timezones
	if len(catalog) == 0 {
		catalog = config.DefaultTimezones()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		cfg:      cfg,
		log:      log,
		bot:      b,
		store:    st,
		sched:    sched,
		catalog:  catalog,
		sessions: map[int64]*session{},
	}, nil
}

// SetScheduler injects the scheduler after construction. The scheduler
// delivers through this bot, so the two cannot be built in one pass; call
// this before Start.
func (b *Bot) SetScheduler(s *scheduler.Service) { b.sched = s }

func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return nil
	}
	b.running = true
	rctx, cancel := context.WithCancel(ctx)
	b.runCancel = cancel
	b.runWG.Add(1)
	b.runMu.Unlock()

	b.registerHandlers()

	go func() {
		defer b.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			b.bot.Stop()
		}()
		b.log.Info("polling started")
		b.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on a
	// Telegram long-poll still in flight.
	b.runMu.Lock()
	cancel := b.runCancel
	b.runCancel = nil
	wasRunning := b.running
	b.running = false
	b.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if b.bot != nil {
		go b.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		b.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		b.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		b.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		b.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// ---- Messenger (notification sink transport) ----

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	_ = ctx
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

func (b *Bot) SendPhoto(ctx context.Context, chatID int64, url, caption string) error {
	_ = ctx
	photo := &tele.Photo{File: tele.FromURL(url), Caption: caption}
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, photo)
	return err
}
