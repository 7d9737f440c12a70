package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

const (
	buttonAmount    = "💰 Coin amount"
	buttonThreshold = "🔔 Alert threshold"
	buttonInvested  = "💵 Invested amount"
	buttonInfo      = "ℹ️ Current info"

	startFmt = "👋 <b>Hi!</b>\n\n" +
		"I track the <b>%s</b> price and ping you when it moves more than " +
		"your threshold (%s%% by default) since the last alert.\n\n" +
		"Set the number of coins you hold to see your balance in alerts, " +
		"and optionally what you invested to see your profit.\n\n" +
		"Use the buttons below."

	removedText = "Your settings were removed. Send /start to begin again."
)

// mainMenuKeyboard builds the persistent reply keyboard.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonAmount),
			tgbotapi.NewKeyboardButton(buttonThreshold),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonInvested),
			tgbotapi.NewKeyboardButton(buttonInfo),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}
