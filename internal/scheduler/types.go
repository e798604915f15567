package scheduler

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/recurrence"
)

var (
	// ErrIncomplete reports an attempt to schedule a draft record.
	ErrIncomplete = errors.New("reminder is not complete")
	// ErrStopped reports scheduling after shutdown began.
	ErrStopped = errors.New("scheduler stopped")
)

// Sink delivers reminder messages to their owner. Implementations must be
// safe for concurrent use; errors are logged by the scheduler and never
// retried.
type Sink interface {
	DeliverPrimary(ctx context.Context, owner int64, text string) error
	DeliverFollowUp(ctx context.Context, owner int64, text string) error
}

// Pair is the derived timer state for one scheduled reminder: the primary
// delivery plus the follow-up exactly ten minutes later. Pairs are
// reconstructed from the store on restart, never persisted.
type Pair struct {
	ID         string
	PrimaryAt  time.Time
	FollowUpAt time.Time
	Repeat     recurrence.Kind
}

// entry is the runtime registry slot behind a Pair. The timer handles are
// replaced on re-arm; a follow-up from the previous occurrence may then keep
// running without a handle and is suppressed at fire time by the registry
// membership check instead.
type entry struct {
	pair     Pair
	primary  *time.Timer
	followUp *time.Timer
}
