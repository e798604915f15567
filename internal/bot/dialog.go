package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "remindbot/pkg/logx"

	"remindbot/internal/recurrence"
	"remindbot/internal/store"
	"remindbot/internal/timeconv"
)

// session is per-chat conversation state. The flow is almost entirely
// callback-driven; the only free-text step is the reminder text itself.
type session struct {
	awaitingText bool
	monthOffset  int
	stopIndex    int // -1 when no stop flow is in progress
}

func (b *Bot) session(owner int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[owner]
	if !ok {
		s = &session{stopIndex: -1}
		b.sessions[owner] = s
	}
	return s
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.onStart)
	b.bot.Handle(tele.OnText, b.onText)
	b.bot.Handle(tele.OnCallback, b.onCallback)
}

func (b *Bot) onStart(c tele.Context) error {
	s := b.session(c.Sender().ID)
	s.awaitingText = false
	s.stopIndex = -1
	return c.Send("Hi! What shall we do?", markup(mainMenuKeyboard()))
}

func (b *Bot) onText(c tele.Context) error {
	owner := c.Sender().ID
	s := b.session(owner)
	if !s.awaitingText {
		return c.Send("Pick an action first:", markup(mainMenuKeyboard()))
	}
	s.awaitingText = false

	text := strings.TrimSpace(c.Text())
	if text == "" {
		s.awaitingText = true
		return c.Send("The reminder text is empty, try again:")
	}
	if _, err := b.store.CreateDraft(owner, text); err != nil {
		b.log.Error("create draft failed", logx.Int64("owner", owner), logx.Err(err))
		return c.Send("Something went wrong, try again later.")
	}
	rows := [][]tele.InlineButton{
		{btn("When to remind?", cbWhen)},
		backRow(),
	}
	return c.Send("Got it!", markup(rows))
}

func (b *Bot) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	defer func() { _ = c.Respond() }()

	owner := c.Sender().ID
	s := b.session(owner)
	data := strings.TrimSpace(cb.Data)

	switch {
	case data == cbMenu:
		s.awaitingText = false
		s.stopIndex = -1
		return b.edit(c, "Hi! What shall we do?", mainMenuKeyboard())

	case data == cbNew:
		s.awaitingText = true
		return b.edit(c, "Send me the reminder text:", [][]tele.InlineButton{backRow()})

	case data == cbWhen:
		if b.store.Len(owner) == 0 {
			s.awaitingText = true
			return b.edit(c, "Send me the reminder text first:", [][]tele.InlineButton{backRow()})
		}
		s.monthOffset = 0
		return b.edit(c, "Pick a date:", calendarKeyboard(time.Now(), 0))

	case strings.HasPrefix(data, cbMonthPrefix):
		offset, err := strconv.Atoi(strings.TrimPrefix(data, cbMonthPrefix))
		if err != nil || offset < 0 {
			offset = 0
		}
		s.monthOffset = offset
		return b.edit(c, "Pick a date:", calendarKeyboard(time.Now(), offset))

	case strings.HasPrefix(data, cbCalPrefix):
		return b.onDatePicked(c, s, strings.TrimPrefix(data, cbCalPrefix))

	case strings.HasPrefix(data, cbHourPrefix):
		return b.onHourPicked(c, strings.TrimPrefix(data, cbHourPrefix))

	case strings.HasPrefix(data, cbMinutePrefix):
		return b.onMinutePicked(c, strings.TrimPrefix(data, cbMinutePrefix))

	case data == cbRepeatMenu:
		return b.edit(c, "How often should it repeat?", frequencyKeyboard())

	case strings.HasPrefix(data, cbRepeatPrefix):
		return b.onRepeatPicked(c, strings.TrimPrefix(data, cbRepeatPrefix))

	case data == cbList:
		return b.onList(c)

	case data == cbTimezone:
		return b.edit(c, "Pick your timezone:", timezoneKeyboard(b.catalog))

	case strings.HasPrefix(data, cbTzPrefix):
		return b.onTimezonePicked(c, strings.TrimPrefix(data, cbTzPrefix))

	case data == cbStop:
		records := b.store.List(owner)
		if len(records) == 0 {
			return b.edit(c, "There is nothing to stop, the list is empty.", [][]tele.InlineButton{backRow()})
		}
		return b.edit(c, "Which reminder should I stop?", stopListKeyboard(records))

	case strings.HasPrefix(data, cbStopPrefix):
		return b.onStopPicked(c, s, strings.TrimPrefix(data, cbStopPrefix))

	case data == cbConfirm:
		return b.onStopConfirmed(c, s)

	case data == cbChat:
		return b.edit(c, "I'd love to chat, but I only know how to remind for now!", [][]tele.InlineButton{backRow()})

	case data == cbSupport:
		return b.edit(c, "The bot is free. If you'd like to support its author, thank you!", [][]tele.InlineButton{backRow()})

	case data == cbNoop:
		return nil
	}

	return c.Respond(&tele.CallbackResponse{Text: "That button isn't available."})
}

// draftIndex returns the record being composed: the last one in the owner's
// list, matching the append-then-fill creation flow.
func (b *Bot) draftIndex(owner int64) (int, bool) {
	n := b.store.Len(owner)
	if n == 0 {
		return 0, false
	}
	return n - 1, true
}

func (b *Bot) onDatePicked(c tele.Context, s *session, raw string) error {
	owner := c.Sender().ID
	idx, ok := b.draftIndex(owner)
	if !ok {
		s.awaitingText = true
		return b.edit(c, "Send me the reminder text first:", [][]tele.InlineButton{backRow()})
	}
	d, err := timeconv.ParseDate(raw)
	if err != nil || !d.Valid() {
		return b.edit(c, "That date didn't work, pick again:", calendarKeyboard(time.Now(), s.monthOffset))
	}
	if err := b.store.SetDate(owner, idx, d); err != nil {
		return b.indexGone(c, err)
	}
	return b.edit(c, "What hour?", hourKeyboard())
}

func (b *Bot) onHourPicked(c tele.Context, raw string) error {
	owner := c.Sender().ID
	idx, ok := b.draftIndex(owner)
	if !ok {
		return b.edit(c, "Send me the reminder text first:", [][]tele.InlineButton{backRow()})
	}
	hour, err := strconv.Atoi(raw)
	if err != nil || hour < 0 || hour > 23 {
		return b.edit(c, "That hour didn't work, pick again:", hourKeyboard())
	}
	if err := b.store.SetHour(owner, idx, hour); err != nil {
		return b.indexGone(c, err)
	}
	return b.edit(c, "And which minute?", minuteKeyboard())
}

func (b *Bot) onMinutePicked(c tele.Context, raw string) error {
	owner := c.Sender().ID
	idx, ok := b.draftIndex(owner)
	if !ok {
		return b.edit(c, "Send me the reminder text first:", [][]tele.InlineButton{backRow()})
	}
	minute, err := strconv.Atoi(raw)
	if err != nil || minute < 0 || minute > 59 {
		return b.edit(c, "That minute didn't work, pick again:", minuteKeyboard())
	}
	if err := b.store.SetMinute(owner, idx, minute); err != nil {
		return b.indexGone(c, err)
	}
	return b.edit(c, "Should it repeat?", repeatChoiceKeyboard())
}

func (b *Bot) onRepeatPicked(c tele.Context, raw string) error {
	owner := c.Sender().ID
	idx, ok := b.draftIndex(owner)
	if !ok {
		return b.edit(c, "Send me the reminder text first:", [][]tele.InlineButton{backRow()})
	}
	kind, err := recurrence.ParseKind(raw)
	if err != nil {
		return b.edit(c, "Should it repeat?", repeatChoiceKeyboard())
	}
	if err := b.store.SetRepeat(owner, idx, kind); err != nil {
		return b.indexGone(c, err)
	}

	rec, ok := b.store.Get(owner, idx)
	if !ok {
		return b.edit(c, "There is nothing to schedule, the list is empty.", [][]tele.InlineButton{backRow()})
	}
	if _, err := b.sched.Schedule(owner, idx, rec); err != nil {
		b.log.Warn("schedule from dialog failed", logx.Int64("owner", owner), logx.Int("index", idx), logx.Err(err))
		return b.edit(c, "I couldn't schedule that reminder. Check your timezone and try again.", [][]tele.InlineButton{backRow()})
	}

	summary := fmt.Sprintf("All set!\nText: %s\nWhen: %s (%s)\nRepeat: %s",
		rec.Text, b.formatWhen(rec), b.zoneLabel(b.store.Timezone(owner)), repeatLabel(kind))
	return b.edit(c, summary, mainMenuKeyboard())
}

func (b *Bot) onList(c tele.Context) error {
	owner := c.Sender().ID
	records := b.store.List(owner)
	if len(records) == 0 {
		return b.edit(c, "Nothing here yet.", [][]tele.InlineButton{backRow()})
	}
	label := b.zoneLabel(b.store.Timezone(owner))
	var sb strings.Builder
	sb.WriteString("Your reminders:\n")
	for _, r := range records {
		if r.Complete() {
			fmt.Fprintf(&sb, "%s at %s (%s)\n", r.Text, b.formatWhen(r), label)
		} else {
			fmt.Fprintf(&sb, "%s: date and time not set\n", r.Text)
		}
	}
	return b.edit(c, strings.TrimRight(sb.String(), "\n"), [][]tele.InlineButton{backRow()})
}

func (b *Bot) onTimezonePicked(c tele.Context, key string) error {
	owner := c.Sender().ID
	for _, e := range b.catalog {
		if e.Key != key {
			continue
		}
		if err := b.store.SetTimezone(owner, e.Zone); err != nil {
			b.log.Error("set timezone failed", logx.Int64("owner", owner), logx.Err(err))
			return b.edit(c, "Something went wrong, try again later.", [][]tele.InlineButton{backRow()})
		}
		msg := fmt.Sprintf("Done! Timezone set to %s.\nReminders will now arrive in your local time.", e.Label)
		return b.edit(c, msg, [][]tele.InlineButton{backRow()})
	}
	return b.edit(c, "Pick your timezone:", timezoneKeyboard(b.catalog))
}

func (b *Bot) onStopPicked(c tele.Context, s *session, raw string) error {
	owner := c.Sender().ID
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= b.store.Len(owner) {
		return b.edit(c, "That reminder is gone already.", [][]tele.InlineButton{backRow()})
	}
	rec, ok := b.store.Get(owner, idx)
	if !ok {
		return b.edit(c, "That reminder is gone already.", [][]tele.InlineButton{backRow()})
	}
	s.stopIndex = idx
	msg := fmt.Sprintf("You picked: %s\nDelete it?", rec.Text)
	return b.edit(c, msg, confirmStopKeyboard())
}

func (b *Bot) onStopConfirmed(c tele.Context, s *session) error {
	owner := c.Sender().ID
	idx := s.stopIndex
	s.stopIndex = -1

	// The list may have changed since the selection; re-validate the index
	// before acting on it.
	if idx < 0 || idx >= b.store.Len(owner) {
		return b.edit(c, "That reminder is gone already.", [][]tele.InlineButton{backRow()})
	}
	removed, err := b.store.Remove(owner, idx)
	if err != nil {
		return b.indexGone(c, err)
	}
	// Keep timer state in lockstep with the store.
	b.sched.Cancel(owner, idx)

	msg := fmt.Sprintf("Reminder %q stopped.", removed.Text)
	return b.edit(c, msg, mainMenuKeyboard())
}

func (b *Bot) indexGone(c tele.Context, err error) error {
	if errors.Is(err, store.ErrIndexOutOfRange) {
		return b.edit(c, "That reminder is gone already.", [][]tele.InlineButton{backRow()})
	}
	b.log.Error("store mutation failed", logx.Err(err))
	return b.edit(c, "Something went wrong, try again later.", [][]tele.InlineButton{backRow()})
}

func (b *Bot) edit(c tele.Context, text string, rows [][]tele.InlineButton) error {
	if err := c.Edit(text, markup(rows)); err != nil {
		// Editing fails when the message is unchanged or too old; fall back
		// to sending a fresh one.
		return c.Send(text, markup(rows))
	}
	return nil
}

// formatWhen renders the record's civil time, which is already in the
// owner's local timezone.
func (b *Bot) formatWhen(r store.Record) string {
	d, hour, minute, ok := r.When()
	if !ok {
		return "date and time not set"
	}
	return fmt.Sprintf("%02d.%02d.%04d %02d:%02d", d.Day, int(d.Month), d.Year, hour, minute)
}

func (b *Bot) zoneLabel(zone string) string {
	for _, e := range b.catalog {
		if e.Zone == zone {
			return e.Label
		}
	}
	return zone
}

func repeatLabel(k recurrence.Kind) string {
	switch k {
	case recurrence.Daily:
		return "every day"
	case recurrence.Weekly:
		return "every week"
	case recurrence.Monthly:
		return "every month"
	case recurrence.Yearly:
		return "every year"
	}
	return "no"
}
