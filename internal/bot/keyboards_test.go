package bot

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/store"
)

func TestCalendarKeyboardCurrentMonth(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	rows := calendarKeyboard(now, 0)

	var blank, days int
	var pager bool
	for _, row := range rows {
		for _, b := range row {
			switch {
			case b.Data == cbNoop && b.Text == " ":
				blank++
			case strings.HasPrefix(b.Data, cbCalPrefix):
				days++
			case strings.HasPrefix(b.Data, cbMonthPrefix):
				pager = true
			}
		}
	}
	// June has 30 days; the 14 before the 15th are blanked out.
	if blank != 14 {
		t.Fatalf("blank slots = %d, want 14", blank)
	}
	if days != 16 {
		t.Fatalf("pickable days = %d, want 16", days)
	}
	if !pager {
		t.Fatal("missing next-month pager")
	}
}

func TestCalendarKeyboardFutureMonthFullyPickable(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC)
	rows := calendarKeyboard(now, 2) // February 2026

	var days int
	var first string
	for _, row := range rows {
		for _, b := range row {
			if strings.HasPrefix(b.Data, cbCalPrefix) {
				if days == 0 {
					first = b.Data
				}
				days++
			}
		}
	}
	if days != 28 {
		t.Fatalf("pickable days = %d, want 28 (Feb 2026)", days)
	}
	if first != cbCalPrefix+"2026-02-01" {
		t.Fatalf("first day data = %q", first)
	}
}

func TestHourAndMinuteKeyboards(t *testing.T) {
	t.Parallel()
	var hours int
	for _, row := range hourKeyboard() {
		for _, b := range row {
			if strings.HasPrefix(b.Data, cbHourPrefix) {
				hours++
			}
		}
	}
	if hours != 24 {
		t.Fatalf("hour buttons = %d, want 24", hours)
	}

	var minutes int
	for _, row := range minuteKeyboard() {
		for _, b := range row {
			if strings.HasPrefix(b.Data, cbMinutePrefix) {
				minutes++
			}
		}
	}
	if minutes != 12 {
		t.Fatalf("minute buttons = %d, want 12 (5-minute steps)", minutes)
	}
}

func TestTimezoneKeyboardCoversCatalog(t *testing.T) {
	t.Parallel()
	catalog := config.DefaultTimezones()
	rows := timezoneKeyboard(catalog)

	keys := map[string]bool{}
	for _, row := range rows {
		for _, b := range row {
			if strings.HasPrefix(b.Data, cbTzPrefix) {
				keys[strings.TrimPrefix(b.Data, cbTzPrefix)] = true
			}
		}
	}
	for _, e := range catalog {
		if !keys[e.Key] {
			t.Fatalf("catalog entry %q missing from keyboard", e.Key)
		}
	}
}

func TestStopListKeyboardIndexesRecords(t *testing.T) {
	t.Parallel()
	records := []store.Record{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	rows := stopListKeyboard(records)

	var got []string
	for _, row := range rows {
		for _, b := range row {
			if strings.HasPrefix(b.Data, cbStopPrefix) {
				got = append(got, b.Data)
			}
		}
	}
	if len(got) != len(records) {
		t.Fatalf("stop buttons = %d, want %d", len(got), len(records))
	}
	for i, data := range got {
		if data != fmt.Sprintf("%s%d", cbStopPrefix, i) {
			t.Fatalf("button %d data = %q", i, data)
		}
	}
}

func TestRepeatLabels(t *testing.T) {
	t.Parallel()
	rows := frequencyKeyboard()
	var datas []string
	for _, row := range rows {
		for _, b := range row {
			if strings.HasPrefix(b.Data, cbRepeatPrefix) {
				datas = append(datas, strings.TrimPrefix(b.Data, cbRepeatPrefix))
			}
		}
	}
	want := []string{"daily", "weekly", "monthly", "yearly"}
	if len(datas) != len(want) {
		t.Fatalf("frequency options = %v", datas)
	}
	for i := range want {
		if datas[i] != want[i] {
			t.Fatalf("option %d = %q, want %q", i, datas[i], want[i])
		}
	}
}
