package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
)

// mainMenuKeyboard is the reply keyboard shown in private chats.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/votes"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/unsubscribe"),
		),
	)
}

// inlineKeyboard renders reminder buttons on one row: links open a page,
// actions come back as callback queries.
func inlineKeyboard(buttons []delivery.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}
