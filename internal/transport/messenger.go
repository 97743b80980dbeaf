package transport

import (
	"context"
	"io"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Messenger is the part of the chat transport the dialogue code needs.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgmodels.InlineKeyboardMarkup) error
}

// Bot extends Messenger with media and callback operations used by the admin
// tools.
type Bot interface {
	Messenger
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup *tgmodels.InlineKeyboardMarkup) (int, error)
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, markup *tgmodels.InlineKeyboardMarkup) (int, error)
	SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Telegram sends through the go-telegram bot client using HTML parse mode.
type Telegram struct {
	bot *bot.Bot
}

func NewTelegram(b *bot.Bot) *Telegram {
	return &Telegram{bot: b}
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Edit replaces text and keyboard of a sent message. A nil markup removes the
// keyboard. Telegram rejects edits that change nothing; those count as success.
func (t *Telegram) Edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgmodels.InlineKeyboardMarkup) error {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	_, err := t.bot.EditMessageText(ctx, params)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	params := &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &tgmodels.InputFileString{Data: fileID},
		Caption: caption,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	msg, err := t.bot.SendPhoto(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *Telegram) SendVideo(ctx context.Context, chatID int64, fileID, caption string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	params := &bot.SendVideoParams{
		ChatID:  chatID,
		Video:   &tgmodels.InputFileString{Data: fileID},
		Caption: caption,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	msg, err := t.bot.SendVideo(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *Telegram) SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader, caption string) error {
	_, err := t.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &tgmodels.InputFileUpload{
			Filename: filename,
			Data:     data,
		},
		Caption: caption,
	})
	return err
}

func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := t.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}
