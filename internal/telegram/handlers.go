package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
	"github.com/Kotpilota/crypto-tracker-bot/internal/store"
)

// ensureSetting makes sure a settings row exists for the chat and the
// default coin, reactivating it for users who come back after blocking.
func (r *Router) ensureSetting(ctx context.Context, chatID int64) (*domain.UserSetting, error) {
	s, err := r.repo.GetOrCreateSetting(ctx, chatID, r.defaultCoin.ID,
		store.SettingDefaults{ThresholdPercent: r.defaultThreshold})
	if err != nil {
		return nil, err
	}
	if !s.Active {
		if err := r.repo.SetActive(ctx, chatID, s.CoinID, true); err != nil {
			return nil, err
		}
		s.Active = true
	}
	return s, nil
}

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendHTML(chatID int64, text string, withMenu bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if withMenu {
		msg.ReplyMarkup = mainMenuKeyboard()
	}
	_, _ = r.bot.Send(msg)
}

// --- Commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	if _, err := r.ensureSetting(ctx, chatID); err != nil {
		r.log.Error("ensureSetting failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, "Profile initialization error. Please try again later.")
		return
	}
	r.sendHTML(chatID, fmt.Sprintf(startFmt, r.defaultCoin.Name, r.defaultThreshold), true)
}

func (r *Router) handleInfo(ctx context.Context, chatID int64) {
	s, err := r.ensureSetting(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSetting failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, "Error reading your settings.")
		return
	}
	coin, err := r.repo.GetCoin(ctx, s.CoinID)
	if err != nil {
		r.log.Error("get coin failed", zap.String("coin", s.CoinID), zap.Error(err))
		r.sendText(chatID, "Error reading coin data.")
		return
	}

	price, err := r.prices.CachedPrice(ctx, coin.ID, coin.Currency)
	if err != nil {
		// Fall back to the last fetched price if the API is unavailable.
		if coin.CurrentPrice == nil {
			r.log.Warn("price lookup failed", zap.String("coin", coin.ID), zap.Error(err))
			r.sendText(chatID, "Could not get the current price. Please try again later.")
			return
		}
		price = *coin.CurrentPrice
	}

	r.sendHTML(chatID, domain.InfoMessage(*coin, *s, price), true)
}

func (r *Router) handleRemove(ctx context.Context, chatID int64) {
	err := r.repo.DeleteSetting(ctx, chatID, r.defaultCoin.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Error("delete setting failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, "Could not remove your settings.")
		return
	}
	r.clearPending(chatID)
	r.sendText(chatID, removedText)
}

// handleStats reports the user count; admin only.
func (r *Router) handleStats(ctx context.Context, chatID int64) {
	if r.adminChatID == 0 || chatID != r.adminChatID {
		return
	}
	n, err := r.repo.CountUsers(ctx)
	if err != nil {
		r.log.Error("count users failed", zap.Error(err))
		r.sendText(chatID, "Could not read statistics.")
		return
	}
	r.sendText(chatID, fmt.Sprintf("Users with settings: %d", n))
}

// --- Numeric input flows ---

func (r *Router) askNumber(chatID int64, prompt, pending string) {
	r.sendText(chatID, prompt)
	r.setPending(chatID, pending)
}

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	pending := r.getPending(chatID)
	if pending == "" {
		r.sendHTML(chatID, "I don't understand that. Use the menu buttons or /start.", true)
		return
	}

	value, err := domain.ParseAmount(text)
	if err != nil {
		r.sendText(chatID, "That doesn't look like a number. Try again, e.g. 12.5")
		return
	}
	r.clearPending(chatID)

	var patch store.SettingPatch
	var confirm string
	switch pending {
	case pendingAmount:
		patch.OwnedAmount = &value
		confirm = "Coin amount updated: " + value.String()
	case pendingThreshold:
		patch.ThresholdPercent = &value
		confirm = "Alert threshold updated: " + value.String() + "%"
	case pendingInvested:
		patch.InvestedAmount = &value
		confirm = "Invested amount updated: " + value.String()
	default:
		return
	}

	if err := r.applyPatch(ctx, chatID, patch); err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			r.sendText(chatID, "Rejected: "+verr.Reason+". Your previous value is kept.")
			return
		}
		r.log.Error("update setting failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, "Could not save the value. Please try again later.")
		return
	}
	r.sendHTML(chatID, confirm, true)
}

func (r *Router) applyPatch(ctx context.Context, chatID int64, patch store.SettingPatch) error {
	if _, err := r.ensureSetting(ctx, chatID); err != nil {
		return err
	}
	_, err := r.repo.UpdateSetting(ctx, chatID, r.defaultCoin.ID, patch)
	return err
}
