package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logx "remindbot/pkg/logx"

	"remindbot/internal/recurrence"
	"remindbot/internal/store"
	"remindbot/internal/timeconv"
)

const (
	defaultFollowUpDelay = 10 * time.Minute
	defaultLateDelay     = 10 * time.Second
	deliverTimeout       = 15 * time.Second
)

// Service owns all pending reminder timers.
//
// Each scheduled reminder holds a primary timer and a follow-up timer that
// are always created together. The registry is keyed by (owner, positional
// index into the owner's store list); cancellation shifts higher indices
// down in lockstep with store removal.
type Service struct {
	log   logx.Logger
	store *store.Store
	sink  Sink

	// now and the delays are fields so tests can compress time.
	now           func() time.Time
	followUpDelay time.Duration
	lateDelay     time.Duration

	mu      sync.Mutex
	pairs   map[int64]map[int]*entry
	stopped bool
}

func New(st *store.Store, sink Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:           log,
		store:         st,
		sink:          sink,
		now:           time.Now,
		followUpDelay: defaultFollowUpDelay,
		lateDelay:     defaultLateDelay,
		pairs:         map[int64]map[int]*entry{},
	}
}

// Schedule computes fire times for the record at (owner, index) and arms
// both timers. Any previously registered pair for that slot is replaced, so
// a record never holds more than one live pair.
//
// When the computed instant is already past: a non-repeating reminder is
// re-anchored to fire shortly (late reminders still fire, they are not
// dropped); a repeating one is advanced by exactly one period, which can
// still land in the past for long-overdue reminders; the timer then fires
// immediately. That single advance matches the behavior this bot replaces
// and is kept on purpose.
//
// Registration is all-or-nothing: validation failures leave no timer behind.
func (s *Service) Schedule(owner int64, index int, rec store.Record) (Pair, error) {
	d, hour, minute, ok := rec.When()
	if !ok {
		return Pair{}, ErrIncomplete
	}

	tz := s.store.Timezone(owner)
	primaryAt, err := timeconv.ToAbsolute(d, hour, minute, tz)
	if err != nil {
		return Pair{}, err
	}

	now := s.now()
	if primaryAt.Before(now) {
		if rec.Repeat.Repeats() {
			primaryAt = recurrence.Next(primaryAt, rec.Repeat)
		} else {
			primaryAt = now.Add(s.lateDelay)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Pair{}, ErrStopped
	}

	s.dropLocked(owner, index)

	e := &entry{pair: Pair{
		ID:         fmt.Sprintf("reminder:%d:%d", owner, now.UnixNano()),
		PrimaryAt:  primaryAt,
		FollowUpAt: primaryAt.Add(s.followUpDelay),
		Repeat:     rec.Repeat,
	}}
	s.armLocked(owner, e)

	if s.pairs[owner] == nil {
		s.pairs[owner] = map[int]*entry{}
	}
	s.pairs[owner][index] = e

	s.log.Debug("reminder scheduled",
		logx.Int64("owner", owner),
		logx.Int("index", index),
		logx.String("id", e.pair.ID),
		logx.Time("primary_at", e.pair.PrimaryAt),
		logx.Time("follow_up_at", e.pair.FollowUpAt),
		logx.String("repeat", string(e.pair.Repeat)))
	return e.pair, nil
}

// armLocked creates both timers for the entry's current pair. Call with
// s.mu held.
func (s *Service) armLocked(owner int64, e *entry) {
	now := s.now()
	primaryDelay := e.pair.PrimaryAt.Sub(now)
	if primaryDelay < 0 {
		primaryDelay = 0
	}
	followUpDelay := e.pair.FollowUpAt.Sub(now)
	if followUpDelay < 0 {
		followUpDelay = 0
	}
	e.primary = time.AfterFunc(primaryDelay, func() { s.firePrimary(owner, e) })
	e.followUp = time.AfterFunc(followUpDelay, func() { s.fireFollowUp(owner, e) })
}

func (s *Service) firePrimary(owner int64, e *entry) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	index, ok := s.indexOfLocked(owner, e)
	if !ok {
		// Canceled while the timer was in flight.
		s.mu.Unlock()
		return
	}
	scheduledAt := e.pair.PrimaryAt
	repeat := e.pair.Repeat
	s.mu.Unlock()

	// The record may have been removed after cancellation lost the race
	// against this callback; the store is the authority.
	rec, ok := s.store.Get(owner, index)
	if !ok {
		s.log.Debug("primary fire for removed reminder, skipping",
			logx.Int64("owner", owner), logx.Int("index", index))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := s.sink.DeliverPrimary(ctx, owner, rec.Text); err != nil {
		s.log.Warn("primary delivery failed", logx.Int64("owner", owner), logx.Err(err))
	} else {
		s.log.Info("primary delivered", logx.Int64("owner", owner), logx.Int("index", index))
	}

	if repeat.Repeats() {
		// Re-arm anchored to the originally scheduled instant so the cadence
		// does not drift with delivery delay.
		s.rearm(owner, e, recurrence.Next(scheduledAt, repeat))
	}
}

func (s *Service) fireFollowUp(owner int64, e *entry) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	index, ok := s.indexOfLocked(owner, e)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	rec, ok := s.store.Get(owner, index)
	if !ok {
		s.log.Debug("follow-up fire for removed reminder, skipping",
			logx.Int64("owner", owner), logx.Int("index", index))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := s.sink.DeliverFollowUp(ctx, owner, rec.Text); err != nil {
		s.log.Warn("follow-up delivery failed", logx.Int64("owner", owner), logx.Err(err))
	}
}

// rearm replaces the entry's pair with the next occurrence. The follow-up of
// the occurrence that just fired keeps its timer; once it fires it passes
// the registry check and delivers normally.
func (s *Service) rearm(owner int64, e *entry, nextAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.indexOfLocked(owner, e); !ok {
		// Canceled during delivery.
		return
	}
	e.pair.ID = fmt.Sprintf("reminder:%d:%d", owner, s.now().UnixNano())
	e.pair.PrimaryAt = nextAt
	e.pair.FollowUpAt = nextAt.Add(s.followUpDelay)
	s.armLocked(owner, e)
	s.log.Debug("reminder re-armed",
		logx.Int64("owner", owner),
		logx.String("id", e.pair.ID),
		logx.Time("primary_at", e.pair.PrimaryAt))
}

// Cancel stops and drops the pair at (owner, index) and shifts higher
// indices down by one, mirroring store removal. Canceling a slot without a
// live pair is a no-op (but indices still shift, e.g. when a draft was
// removed). Returns whether a pair existed.
func (s *Service) Cancel(owner int64, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.pairs[owner]
	if m == nil {
		return false
	}
	_, existed := m[index]
	s.dropLocked(owner, index)

	shifted := make(map[int]*entry, len(m))
	for i, e := range m {
		if i > index {
			shifted[i-1] = e
		} else {
			shifted[i] = e
		}
	}
	if len(shifted) == 0 {
		delete(s.pairs, owner)
	} else {
		s.pairs[owner] = shifted
	}

	if existed {
		s.log.Debug("reminder canceled", logx.Int64("owner", owner), logx.Int("index", index))
	}
	return existed
}

// dropLocked stops and removes the entry at (owner, index) without shifting.
// Call with s.mu held.
func (s *Service) dropLocked(owner int64, index int) {
	m := s.pairs[owner]
	e, ok := m[index]
	if !ok {
		return
	}
	if e.primary != nil {
		_ = e.primary.Stop()
	}
	if e.followUp != nil {
		_ = e.followUp.Stop()
	}
	delete(m, index)
}

func (s *Service) indexOfLocked(owner int64, e *entry) (int, bool) {
	for i, cur := range s.pairs[owner] {
		if cur == e {
			return i, true
		}
	}
	return 0, false
}

// PairAt returns the live pair for a slot, if any.
func (s *Service) PairAt(owner int64, index int) (Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pairs[owner][index]
	if !ok {
		return Pair{}, false
	}
	return e.pair, true
}

// Pairs returns the owner's live pairs ordered by index.
func (s *Service) Pairs(owner int64) []Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.pairs[owner]
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]Pair, 0, len(idx))
	for _, i := range idx {
		out = append(out, m[i].pair)
	}
	return out
}

// Resync arms every complete record that has no live pair. It backstops
// schedule attempts that failed (e.g. a timezone that stopped resolving) and
// is driven periodically by the app's cron job.
func (s *Service) Resync(ctx context.Context) {
	armed := 0
	for _, owner := range s.store.Owners() {
		if ctx.Err() != nil {
			return
		}
		for index, rec := range s.store.List(owner) {
			if !rec.Complete() {
				continue
			}
			if _, ok := s.PairAt(owner, index); ok {
				continue
			}
			if _, err := s.Schedule(owner, index, rec); err != nil {
				s.log.Warn("resync schedule failed",
					logx.Int64("owner", owner), logx.Int("index", index), logx.Err(err))
				continue
			}
			armed++
		}
	}
	if armed > 0 {
		s.log.Info("resync armed reminders", logx.Int("count", armed))
	}
}

// StopAll stops every timer and rejects further scheduling. Pending
// callbacks that already left the timer runtime observe the stopped flag and
// return without delivering.
func (s *Service) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for owner, m := range s.pairs {
		for index := range m {
			s.dropLocked(owner, index)
		}
		delete(s.pairs, owner)
	}
}
