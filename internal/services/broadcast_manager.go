package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/ad/go-telegram-contest/internal/metrics"
	"github.com/ad/go-telegram-contest/internal/transport"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

type NewsKind string

const (
	NewsText  NewsKind = "text"
	NewsPhoto NewsKind = "photo"
	NewsVideo NewsKind = "video"
)

var ErrEmptyNews = errors.New("news has no content")

// News is a message an admin sends to every participant. FileID refers to an
// already uploaded photo or video.
type News struct {
	Kind   NewsKind
	Text   string
	FileID string
}

// NewsFromMessage builds News from an admin's message. Unsupported content
// yields ErrEmptyNews.
func NewsFromMessage(msg *tgmodels.Message) (News, error) {
	switch {
	case len(msg.Photo) > 0:
		return News{Kind: NewsPhoto, Text: msg.Caption, FileID: msg.Photo[len(msg.Photo)-1].FileID}, nil
	case msg.Video != nil:
		return News{Kind: NewsVideo, Text: msg.Caption, FileID: msg.Video.FileID}, nil
	case msg.Text != "":
		return News{Kind: NewsText, Text: msg.Text}, nil
	default:
		return News{}, ErrEmptyNews
	}
}

type BroadcastResult struct {
	Total  int
	Sent   int
	Failed int
}

const progressEvery = 10

type BroadcastManager struct {
	participants *ParticipantManager
	bot          transport.Bot
	delay        time.Duration
	logger       zerolog.Logger
}

func NewBroadcastManager(participants *ParticipantManager, b transport.Bot, delay time.Duration, logger zerolog.Logger) *BroadcastManager {
	return &BroadcastManager{
		participants: participants,
		bot:          b,
		delay:        delay,
		logger:       logger,
	}
}

// Broadcast delivers news to every participant, pausing between sends.
// progress, when set, is called after every tenth delivered message.
// A failed recipient is logged and skipped.
func (bm *BroadcastManager) Broadcast(
	ctx context.Context,
	news News,
	markup *tgmodels.InlineKeyboardMarkup,
	progress func(sent, total int),
) (BroadcastResult, error) {
	recipients, err := bm.participants.Recipients(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("load recipients: %w", err)
	}

	result := BroadcastResult{Total: len(recipients)}
	for i, userID := range recipients {
		if i > 0 && bm.delay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(bm.delay):
			}
		}

		if err := bm.send(ctx, userID, news, markup); err != nil {
			result.Failed++
			metrics.BroadcastMessages().WithLabelValues("failed").Inc()
			bm.logger.Warn().Err(err).Int64("user_id", userID).Msg("broadcast delivery failed")
			continue
		}
		result.Sent++
		metrics.BroadcastMessages().WithLabelValues("sent").Inc()

		if progress != nil && result.Sent%progressEvery == 0 {
			progress(result.Sent, result.Total)
		}
	}

	bm.logger.Info().
		Int("total", result.Total).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Str("kind", string(news.Kind)).
		Msg("broadcast finished")
	return result, nil
}

func (bm *BroadcastManager) send(ctx context.Context, chatID int64, news News, markup *tgmodels.InlineKeyboardMarkup) error {
	var err error
	switch news.Kind {
	case NewsPhoto:
		_, err = bm.bot.SendPhoto(ctx, chatID, news.FileID, news.Text, markup)
	case NewsVideo:
		_, err = bm.bot.SendVideo(ctx, chatID, news.FileID, news.Text, markup)
	case NewsText:
		// Text goes out in HTML mode; the admin typed plain text.
		_, err = bm.bot.Send(ctx, chatID, html.EscapeString(news.Text), markup)
	default:
		err = ErrEmptyNews
	}
	return err
}
