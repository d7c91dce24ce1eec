package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/savino/classeviva-HA-custom-integration/internal/metrics"
	"github.com/savino/classeviva-HA-custom-integration/internal/observability"
)

// Telegram pushes events to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(bot *tgbotapi.BotAPI, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

// System errors (5xx, 429, timeout) go to Sentry; telegram-side validation
// noise does not.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "timeout")
}

func (t *Telegram) send(text string, category string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		if isSystemErr(err) {
			observability.CaptureErr(err)
		}
		return
	}
	metrics.Notifications.WithLabelValues(category).Inc()
}

func (t *Telegram) NewDidactics(_ context.Context, ev DidacticsEvent) {
	t.send(fmt.Sprintf("📚 New didactics item\n%s — %s\n%s (%s)",
		ev.Teacher, ev.Folder, ev.ItemName, ev.ShareDate), "didactics")
}

func (t *Telegram) NewNoticeboard(_ context.Context, ev NoticeboardEvent) {
	t.send(fmt.Sprintf("📌 New notice: %s\n%s · %s · %s",
		ev.Title, ev.Author, ev.Category, ev.Begin), "noticeboard")
}

func (t *Telegram) NewAgenda(_ context.Context, ev AgendaEvent) {
	t.send(fmt.Sprintf("🗓 New agenda event (%s)\n%s\n%s — %s",
		ev.Subject, ev.Notes, ev.Begin, ev.End), "agenda")
}

func (t *Telegram) StudentAgenda(_ context.Context, ev AgendaEvent) {
	t.send(fmt.Sprintf("❗️ Event concerning the student (%s)\n%s\n%s — %s",
		ev.Subject, ev.Notes, ev.Begin, ev.End), "student_agenda")
}
