package scheduler

import (
	"context"

	logx "remindbot/pkg/logx"
)

// RestoreAll re-creates timers for every persisted reminder at startup,
// replaying the exact Schedule decision logic: a reminder whose time elapsed
// while the process was down is treated the same as one that became overdue
// while it was running. Drafts are skipped and logged, never fatal.
func (s *Service) RestoreAll(ctx context.Context) error {
	restored, skipped := 0, 0
	for _, owner := range s.store.Owners() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for index, rec := range s.store.List(owner) {
			if !rec.Complete() {
				skipped++
				s.log.Debug("skipping incomplete reminder",
					logx.Int64("owner", owner), logx.Int("index", index))
				continue
			}
			if _, err := s.Schedule(owner, index, rec); err != nil {
				s.log.Warn("restore failed for reminder",
					logx.Int64("owner", owner), logx.Int("index", index), logx.Err(err))
				continue
			}
			restored++
		}
	}
	s.log.Info("reminders restored", logx.Int("restored", restored), logx.Int("skipped", skipped))
	return nil
}
