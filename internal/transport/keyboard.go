package transport

import tgmodels "github.com/go-telegram/bot/models"

func Button(text, data string) tgmodels.InlineKeyboardButton {
	return tgmodels.InlineKeyboardButton{Text: text, CallbackData: data}
}

// Keyboard builds an inline keyboard, one row per argument.
func Keyboard(rows ...[]tgmodels.InlineKeyboardButton) *tgmodels.InlineKeyboardMarkup {
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Row is shorthand for a keyboard row.
func Row(buttons ...tgmodels.InlineKeyboardButton) []tgmodels.InlineKeyboardButton {
	return buttons
}

// CallbackData lists every callback payload of a keyboard in order.
func CallbackData(markup *tgmodels.InlineKeyboardMarkup) []string {
	if markup == nil {
		return nil
	}
	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, b := range row {
			data = append(data, b.CallbackData)
		}
	}
	return data
}
