package bot

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/config"
	"remindbot/internal/store"
)

// Callback data prefixes. Kept short: Telegram caps callback_data at 64 bytes.
const (
	cbMenu       = "menu"
	cbNew        = "new"
	cbWhen       = "when"
	cbList       = "list"
	cbTimezone   = "tz"
	cbStop       = "stop"
	cbChat       = "chat"
	cbSupport    = "support"
	cbNoop       = "noop"
	cbRepeatMenu = "repeatmenu"
	cbConfirm    = "confirm_stop"

	cbCalPrefix    = "cal_"    // cal_2025-01-02
	cbMonthPrefix  = "month_"  // month_1 (offset from current month)
	cbHourPrefix   = "hour_"   // hour_9
	cbMinutePrefix = "minute_" // minute_45
	cbRepeatPrefix = "rep_"    // rep_daily, rep_no_repeat
	cbTzPrefix     = "tz_"     // tz_moscow
	cbStopPrefix   = "stop_"   // stop_2
)

func btn(text, data string) tele.InlineButton {
	return tele.InlineButton{Text: text, Data: data}
}

func backRow() []tele.InlineButton {
	return []tele.InlineButton{btn("Back to menu", cbMenu)}
}

func markup(rows [][]tele.InlineButton) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func mainMenuKeyboard() [][]tele.InlineButton {
	return [][]tele.InlineButton{
		{btn("New reminder", cbNew)},
		{btn("My reminders", cbList)},
		{btn("My timezone", cbTimezone)},
		{btn("Have a chat", cbChat)},
		{btn("Support the author", cbSupport)},
		{btn("Stop a reminder", cbStop)},
	}
}

// calendarKeyboard renders the month at the given offset from now: weeks as
// rows, days before today blanked out, plus a next-month pager.
func calendarKeyboard(now time.Time, offset int) [][]tele.InlineButton {
	year := now.Year() + (int(now.Month())+offset-1)/12
	month := time.Month((int(now.Month())+offset-1)%12 + 1)

	firstOfNext := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	lastDay := firstOfNext.AddDate(0, 0, -1).Day()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var rows [][]tele.InlineButton
	for weekStart := 1; weekStart <= lastDay; weekStart += 7 {
		var row []tele.InlineButton
		for d := weekStart; d < weekStart+7 && d <= lastDay; d++ {
			day := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
			if day.Before(today) {
				row = append(row, btn(" ", cbNoop))
				continue
			}
			row = append(row, btn(fmt.Sprintf("%d", d), fmt.Sprintf("%s%04d-%02d-%02d", cbCalPrefix, year, int(month), d)))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []tele.InlineButton{btn("Next month", fmt.Sprintf("%s%d", cbMonthPrefix, offset+1))})
	rows = append(rows, backRow())
	return rows
}

func hourKeyboard() [][]tele.InlineButton {
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for h := 0; h < 24; h++ {
		row = append(row, btn(fmt.Sprintf("%02d", h), fmt.Sprintf("%s%d", cbHourPrefix, h)))
		if len(row) == 6 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, backRow())
	return rows
}

func minuteKeyboard() [][]tele.InlineButton {
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for m := 0; m < 60; m += 5 {
		row = append(row, btn(fmt.Sprintf("%02d", m), fmt.Sprintf("%s%d", cbMinutePrefix, m)))
		if len(row) == 6 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, backRow())
	return rows
}

func repeatChoiceKeyboard() [][]tele.InlineButton {
	return [][]tele.InlineButton{
		{btn("Repeat?", cbRepeatMenu), btn("Don't repeat", cbRepeatPrefix+"no_repeat")},
		backRow(),
	}
}

func frequencyKeyboard() [][]tele.InlineButton {
	return [][]tele.InlineButton{
		{btn("Every day", cbRepeatPrefix+"daily")},
		{btn("Every week", cbRepeatPrefix+"weekly")},
		{btn("Every month", cbRepeatPrefix+"monthly")},
		{btn("Every year", cbRepeatPrefix+"yearly")},
		backRow(),
	}
}

// timezoneKeyboard lays the catalog out two per row, original style.
func timezoneKeyboard(catalog []config.TimezoneEntry) [][]tele.InlineButton {
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, e := range catalog {
		row = append(row, btn(e.Label, cbTzPrefix+e.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, backRow())
	return rows
}

func stopListKeyboard(records []store.Record) [][]tele.InlineButton {
	var rows [][]tele.InlineButton
	for i, r := range records {
		rows = append(rows, []tele.InlineButton{btn(r.Text, fmt.Sprintf("%s%d", cbStopPrefix, i))})
	}
	rows = append(rows, backRow())
	return rows
}

func confirmStopKeyboard() [][]tele.InlineButton {
	return [][]tele.InlineButton{
		{btn("Yes, delete it", cbConfirm)},
		backRow(),
	}
}
