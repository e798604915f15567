package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "remindbot/pkg/logx"

	"remindbot/internal/recurrence"
	"remindbot/internal/store"
	"remindbot/internal/timeconv"
)

type fakeSink struct {
	mu        sync.Mutex
	primaries []string
	followUps []string
}

func (f *fakeSink) DeliverPrimary(ctx context.Context, owner int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primaries = append(f.primaries, text)
	return nil
}

func (f *fakeSink) DeliverFollowUp(ctx context.Context, owner int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUps = append(f.followUps, text)
	return nil
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.primaries), len(f.followUps)
}

// fixedNow keeps every scheduling decision deterministic; real timers are
// still armed but far enough out that they never fire during a test run.
var fixedNow = time.Date(2030, time.May, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *store.Store, *fakeSink) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "remindbot")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sink := &fakeSink{}
	s := New(st, sink, logx.Nop())
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(s.StopAll)
	return s, st, sink
}

func addRecord(t *testing.T, st *store.Store, owner int64, text string, d timeconv.Date, hour, minute int, k recurrence.Kind) (int, store.Record) {
	t.Helper()
	idx, err := st.CreateDraft(owner, text)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if err := st.SetDate(owner, idx, d); err != nil {
		t.Fatalf("SetDate: %v", err)
	}
	if err := st.SetHour(owner, idx, hour); err != nil {
		t.Fatalf("SetHour: %v", err)
	}
	if err := st.SetMinute(owner, idx, minute); err != nil {
		t.Fatalf("SetMinute: %v", err)
	}
	if err := st.SetRepeat(owner, idx, k); err != nil {
		t.Fatalf("SetRepeat: %v", err)
	}
	rec, ok := st.Get(owner, idx)
	if !ok {
		t.Fatal("record missing after setup")
	}
	return idx, rec
}

func TestScheduleFollowUpOffset(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 1
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	idx, rec := addRecord(t, st, owner, "walk the dog", timeconv.NewDate(2030, time.May, 2), 9, 15, recurrence.None)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	wantPrimary := time.Date(2030, time.May, 2, 9, 15, 0, 0, time.UTC)
	if !pair.PrimaryAt.Equal(wantPrimary) {
		t.Fatalf("PrimaryAt = %v, want %v", pair.PrimaryAt, wantPrimary)
	}
	if got := pair.FollowUpAt.Sub(pair.PrimaryAt); got != 10*time.Minute {
		t.Fatalf("follow-up offset = %v, want 10m", got)
	}
}

func TestScheduleHonorsOwnerTimezone(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 2
	if err := st.SetTimezone(owner, "Europe/Moscow"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	idx, rec := addRecord(t, st, owner, "meeting", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	want := time.Date(2030, time.May, 2, 6, 0, 0, 0, time.UTC)
	if !pair.PrimaryAt.Equal(want) {
		t.Fatalf("PrimaryAt = %v, want %v (09:00 MSK)", pair.PrimaryAt.UTC(), want)
	}
}

func TestSchedulePastNonRepeatingFiresShortly(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 3
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	idx, rec := addRecord(t, st, owner, "missed it", timeconv.NewDate(2030, time.April, 1), 9, 0, recurrence.None)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !pair.PrimaryAt.Equal(fixedNow.Add(10 * time.Second)) {
		t.Fatalf("PrimaryAt = %v, want now+10s", pair.PrimaryAt)
	}
}

func TestScheduleOverdueDailyAdvancesOnePeriod(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 4
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	// A week overdue: the advance is exactly one period, not "until future".
	idx, rec := addRecord(t, st, owner, "stand-up", timeconv.NewDate(2030, time.April, 24), 9, 0, recurrence.Daily)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	want := time.Date(2030, time.April, 25, 9, 0, 0, 0, time.UTC)
	if !pair.PrimaryAt.Equal(want) {
		t.Fatalf("PrimaryAt = %v, want %v", pair.PrimaryAt, want)
	}
}

func TestScheduleDraftRejected(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 5
	if _, err := st.CreateDraft(owner, "unfinished"); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	rec, _ := st.Get(owner, 0)
	if _, err := s.Schedule(owner, 0, rec); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("want ErrIncomplete, got %v", err)
	}
}

func TestScheduleBadTimezoneRegistersNothing(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 6
	if err := st.SetTimezone(owner, "Not/AZone"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	idx, rec := addRecord(t, st, owner, "x", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)
	if _, err := s.Schedule(owner, idx, rec); !errors.Is(err, timeconv.ErrInvalidTimeZone) {
		t.Fatalf("want ErrInvalidTimeZone, got %v", err)
	}
	if _, ok := s.PairAt(owner, idx); ok {
		t.Fatal("failed schedule must leave no pair behind")
	}
}

func TestCancelShiftsHigherIndices(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 7
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		idx, rec := addRecord(t, st, owner, "r", timeconv.NewDate(2030, time.May, 2+i), 9, 0, recurrence.None)
		pair, err := s.Schedule(owner, idx, rec)
		if err != nil {
			t.Fatalf("Schedule #%d: %v", i, err)
		}
		ids[i] = pair.ID
	}
	if _, err := st.Remove(owner, 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !s.Cancel(owner, 2) {
		t.Fatal("Cancel must report an existing pair")
	}

	pairs := s.Pairs(owner)
	if len(pairs) != 4 {
		t.Fatalf("len(pairs) = %d, want 4", len(pairs))
	}
	want := []string{ids[0], ids[1], ids[3], ids[4]}
	for i, p := range pairs {
		if p.ID != want[i] {
			t.Fatalf("pairs[%d].ID = %q, want %q", i, p.ID, want[i])
		}
	}
}

func TestCancelWithoutPairStillShifts(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 8
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	// Slot 0 is a draft with no pair; slot 1 is scheduled.
	if _, err := st.CreateDraft(owner, "draft"); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	idx, rec := addRecord(t, st, owner, "real", timeconv.NewDate(2030, time.May, 3), 9, 0, recurrence.None)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if _, err := st.Remove(owner, 0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Cancel(owner, 0) {
		t.Fatal("no pair existed at index 0")
	}
	got, ok := s.PairAt(owner, 0)
	if !ok || got.ID != pair.ID {
		t.Fatalf("pair did not shift down: ok=%v id=%q", ok, got.ID)
	}
}

func TestFireAfterCancelDeliversNothing(t *testing.T) {
	s, st, sink := newTestService(t)
	const owner int64 = 9
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	idx, rec := addRecord(t, st, owner, "gone", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)
	if _, err := s.Schedule(owner, idx, rec); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.mu.Lock()
	e := s.pairs[owner][idx]
	s.mu.Unlock()

	if _, err := st.Remove(owner, idx); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	s.Cancel(owner, idx)

	// Simulate the timer callbacks losing the race against cancellation.
	s.firePrimary(owner, e)
	s.fireFollowUp(owner, e)

	if p, f := sink.counts(); p != 0 || f != 0 {
		t.Fatalf("delivered after cancel: primaries=%d followUps=%d", p, f)
	}
}

func TestFirePrimaryDeliversAndRearmsDaily(t *testing.T) {
	s, st, sink := newTestService(t)
	const owner int64 = 10
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	idx, rec := addRecord(t, st, owner, "stretch", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.Daily)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.mu.Lock()
	e := s.pairs[owner][idx]
	s.mu.Unlock()

	s.firePrimary(owner, e)

	if p, _ := sink.counts(); p != 1 {
		t.Fatalf("primaries = %d, want 1", p)
	}
	next, ok := s.PairAt(owner, idx)
	if !ok {
		t.Fatal("daily reminder must stay registered after firing")
	}
	wantNext := pair.PrimaryAt.Add(24 * time.Hour)
	if !next.PrimaryAt.Equal(wantNext) {
		t.Fatalf("re-armed PrimaryAt = %v, want %v", next.PrimaryAt, wantNext)
	}
	if got := next.FollowUpAt.Sub(next.PrimaryAt); got != 10*time.Minute {
		t.Fatalf("re-armed follow-up offset = %v", got)
	}
	if next.ID == pair.ID {
		t.Fatal("re-arm must mint a fresh id")
	}
}

func TestFirePrimaryNonRepeatingStaysRegistered(t *testing.T) {
	s, st, sink := newTestService(t)
	const owner int64 = 11
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	idx, rec := addRecord(t, st, owner, "once", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)
	pair, err := s.Schedule(owner, idx, rec)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.mu.Lock()
	e := s.pairs[owner][idx]
	s.mu.Unlock()

	s.firePrimary(owner, e)

	if p, _ := sink.counts(); p != 1 {
		t.Fatalf("primaries = %d, want 1", p)
	}
	// The follow-up is still pending; the pair must not have been re-armed.
	got, ok := s.PairAt(owner, idx)
	if !ok || !got.PrimaryAt.Equal(pair.PrimaryAt) {
		t.Fatalf("pair changed after non-repeating fire: ok=%v %v", ok, got.PrimaryAt)
	}

	s.fireFollowUp(owner, e)
	if _, f := sink.counts(); f != 1 {
		t.Fatalf("followUps = %d, want 1", f)
	}
}

func TestRestoreAllReproducesDeadlines(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 12
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}

	i0, r0 := addRecord(t, st, owner, "a", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)
	i1, r1 := addRecord(t, st, owner, "b", timeconv.NewDate(2030, time.May, 3), 10, 30, recurrence.Weekly)
	if _, err := st.CreateDraft(owner, "draft"); err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}

	p0, err := s.Schedule(owner, i0, r0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	p1, err := s.Schedule(owner, i1, r1)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.StopAll()

	// Fresh service over the same store, as after a restart.
	s2 := New(st, &fakeSink{}, logx.Nop())
	s2.now = func() time.Time { return fixedNow }
	defer s2.StopAll()

	if err := s2.RestoreAll(context.Background()); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}
	pairs := s2.Pairs(owner)
	if len(pairs) != 2 {
		t.Fatalf("restored %d pairs, want 2 (draft skipped)", len(pairs))
	}
	if !pairs[0].PrimaryAt.Equal(p0.PrimaryAt) || !pairs[1].PrimaryAt.Equal(p1.PrimaryAt) {
		t.Fatalf("restored deadlines differ: %v / %v", pairs[0].PrimaryAt, pairs[1].PrimaryAt)
	}
	if !pairs[0].FollowUpAt.Equal(p0.FollowUpAt) || !pairs[1].FollowUpAt.Equal(p1.FollowUpAt) {
		t.Fatalf("restored follow-ups differ")
	}
}

func TestResyncArmsMissingPairs(t *testing.T) {
	s, st, _ := newTestService(t)
	const owner int64 = 13
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	addRecord(t, st, owner, "forgotten", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)

	s.Resync(context.Background())
	if _, ok := s.PairAt(owner, 0); !ok {
		t.Fatal("resync must arm the unpaired record")
	}
}

func TestStopAllRejectsFurtherScheduling(t *testing.T) {
	s, st, sink := newTestService(t)
	const owner int64 = 14
	if err := st.SetTimezone(owner, "UTC"); err != nil {
		t.Fatalf("SetTimezone: %v", err)
	}
	idx, rec := addRecord(t, st, owner, "x", timeconv.NewDate(2030, time.May, 2), 9, 0, recurrence.None)
	if _, err := s.Schedule(owner, idx, rec); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.mu.Lock()
	e := s.pairs[owner][idx]
	s.mu.Unlock()

	s.StopAll()
	if _, err := s.Schedule(owner, idx, rec); !errors.Is(err, ErrStopped) {
		t.Fatalf("want ErrStopped, got %v", err)
	}
	s.firePrimary(owner, e)
	if p, _ := sink.counts(); p != 0 {
		t.Fatalf("delivered after StopAll: %d", p)
	}
}
