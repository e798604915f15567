// Package notify delivers reminder messages to Telegram with a token-bucket
// rate limit. Delivery is best-effort: errors bubble up to the scheduler,
// which logs and never retries.
package notify

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/time/rate"

	logx "remindbot/pkg/logx"
)

// Messenger is the transport the sink sends through.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, url, caption string) error
}

type Config struct {
	RatePerSec int

	// Templates must contain one %s verb for the reminder text.
	PrimaryTemplate  string
	FollowUpTemplate string

	// ImageURLs, when non-empty, makes primary deliveries a photo with the
	// formatted text as caption; one URL is picked at random per delivery.
	ImageURLs []string
}

type Service struct {
	cfg     Config
	m       Messenger
	log     logx.Logger
	limiter *rate.Limiter

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg Config, m Messenger, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.PrimaryTemplate == "" {
		cfg.PrimaryTemplate = "Here's your reminder: %s"
	}
	if cfg.FollowUpTemplate == "" {
		cfg.FollowUpTemplate = "Did you get around to it yet? %s"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		m:   m,
		log: log,
		// Burst equals the per-second rate so short spikes don't block.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		rnd:     rand.New(rand.NewSource(rand.Int63())),
	}
}

func (s *Service) DeliverPrimary(ctx context.Context, owner int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := fmt.Sprintf(s.cfg.PrimaryTemplate, text)
	if url := s.pickImage(); url != "" {
		if err := s.m.SendPhoto(ctx, owner, url, msg); err == nil {
			s.log.Debug("primary sent as photo", logx.Int64("owner", owner))
			return nil
		}
		// Photo delivery is decoration; fall back to plain text so the
		// reminder itself still arrives.
		s.log.Debug("photo send failed, falling back to text", logx.Int64("owner", owner))
	}
	return s.m.SendText(ctx, owner, msg)
}

func (s *Service) DeliverFollowUp(ctx context.Context, owner int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.m.SendText(ctx, owner, fmt.Sprintf(s.cfg.FollowUpTemplate, text))
}

func (s *Service) pickImage() string {
	if len(s.cfg.ImageURLs) == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ImageURLs[s.rnd.Intn(len(s.cfg.ImageURLs))]
}
