package telegram

import (
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
)

// SendAlert delivers one price alert as HTML. This makes Router satisfy
// scheduler.Notifier. A 403 from the API means the user blocked the bot and
// is surfaced as domain.ErrUserBlocked so the poller can deactivate them.
func (r *Router) SendAlert(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := r.bot.Send(msg); err != nil {
		return classifyDelivery(err)
	}
	return nil
}

func classifyDelivery(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", domain.ErrUserBlocked, apiErr.Message)
	}
	return err
}
