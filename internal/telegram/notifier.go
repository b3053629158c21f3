package telegram

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/kingspeech/leadbot/internal/survey"
)

// ChatNotifier delivers lead summaries to the staff workgroup chat through
// the async dispatcher. A zero chat id disables notifications.
type ChatNotifier struct {
	bot        *tele.Bot
	chatID     int64
	dispatcher *Dispatcher
}

func NewChatNotifier(bot *tele.Bot, chatID int64, dispatcher *Dispatcher) *ChatNotifier {
	return &ChatNotifier{bot: bot, chatID: chatID, dispatcher: dispatcher}
}

// NotifyLead enqueues the staff-chat summary message.
func (n *ChatNotifier) NotifyLead(ctx context.Context, rec survey.Record) error {
	if n.chatID == 0 {
		return nil
	}
	return n.dispatcher.Enqueue(ctx, "send.lead_summary", func() error {
		_, err := n.bot.Send(tele.ChatID(n.chatID), rec.Summary(), tele.ModeMarkdown)
		return err
	})
}
