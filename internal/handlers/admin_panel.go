package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/intake"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/services"
	"github.com/ad/go-telegram-contest/internal/transport"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	callbackAdminPanel   = "admin_panel"
	callbackViewApps     = "admin_view_apps"
	callbackViewRating   = "admin_view_rating"
	callbackExportRating = "admin_export_rating"
	callbackSendNews     = "admin_send_news"
	callbackCancelNews   = "cancel_admin_news"
)

const ratingTopSize = 10

const textAdminPanel = "🛡 Админ-панель:"

func adminMenuKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(transport.Button("📬 Заявки", callbackViewApps)),
		transport.Row(transport.Button("🏆 Рейтинг", callbackViewRating)),
		transport.Row(transport.Button("📤 Выгрузить рейтинг", callbackExportRating)),
		transport.Row(transport.Button("📢 Рассылка", callbackSendNews)),
	)
}

func cancelNewsKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(transport.Button("🔙 Отменить рассылку", callbackCancelNews)),
	)
}

// showAdminPanel edits messageID into the panel (or sends a new one) and
// resets the admin dialogue to the panel state.
func (h *ContestHandler) showAdminPanel(ctx context.Context, userID int64, messageID int, note string) {
	text := textAdminPanel
	if note != "" {
		text = note + "\n\n" + text
	}
	h.showPanelText(ctx, userID, userID, messageID, text)
}

func (h *ContestHandler) showPanelText(ctx context.Context, userID, chatID int64, messageID int, text string) {
	id := h.edit(ctx, chatID, messageID, text, adminMenuKeyboard())
	h.saveAdminState(ctx, &models.AdminState{
		UserID:           userID,
		CurrentState:     fsm.StateAdminPanel,
		LastBotMessageID: id,
	})
}

func (h *ContestHandler) saveAdminState(ctx context.Context, state *models.AdminState) bool {
	if err := h.adminStateRepo.Save(ctx, state); err != nil {
		h.logger.Error().Err(err).Int64("user_id", state.UserID).Str("state", state.CurrentState).Msg("save admin state")
		return false
	}
	return true
}

func (h *ContestHandler) handleAdminCallback(ctx context.Context, userID, chatID int64, messageID int, messageText, data string) {
	switch {
	case data == callbackAdminPanel:
		h.showAdminPanel(ctx, userID, 0, "")
	case data == callbackViewApps:
		h.handleViewApps(ctx, userID, chatID, messageID)
	case data == callbackViewRating:
		h.handleViewRating(ctx, userID, chatID, messageID)
	case data == callbackExportRating:
		h.handleExportRating(ctx, userID, chatID, messageID)
	case data == callbackSendNews:
		h.handleSendNewsStart(ctx, userID, chatID, messageID)
	case data == callbackCancelNews:
		h.showPanelText(ctx, userID, chatID, messageID, "❌ Рассылка отменена.\n\n"+textAdminPanel)
	case strings.HasPrefix(data, intake.ApprovePrefix):
		h.handleApprove(ctx, userID, chatID, messageID, messageText, strings.TrimPrefix(data, intake.ApprovePrefix))
	case strings.HasPrefix(data, intake.RejectPrefix):
		h.handleReject(ctx, userID, chatID, messageID, messageText, strings.TrimPrefix(data, intake.RejectPrefix))
	default:
		h.logger.Warn().Str("data", data).Msg("unknown admin callback")
	}
}

func (h *ContestHandler) handleViewApps(ctx context.Context, userID, chatID int64, messageID int) {
	stats, err := h.rating.Stats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("load submission stats")
		h.showPanelText(ctx, userID, chatID, messageID, textStoreFailure)
		return
	}
	text := fmt.Sprintf("📬 Подано %d заявок от %d участников. Оценено: %d.",
		stats.Submissions, stats.Participants, stats.Scored)
	h.showPanelText(ctx, userID, chatID, messageID, text)
}

func (h *ContestHandler) handleViewRating(ctx context.Context, userID, chatID int64, messageID int) {
	top, err := h.rating.Top(ctx, ratingTopSize)
	if err != nil {
		h.logger.Error().Err(err).Msg("load rating")
		h.showPanelText(ctx, userID, chatID, messageID, textStoreFailure)
		return
	}
	h.showPanelText(ctx, userID, chatID, messageID, ratingText(top))
}

func ratingText(top []models.RatingEntry) string {
	if len(top) == 0 {
		return "⚠️ Пока нет данных для рейтинга."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 <b>Топ-%d участников:</b>\n\n", ratingTopSize)
	for _, e := range top {
		link := fmt.Sprintf("tg://user?id=%d", e.ParticipantID)
		if username := strings.TrimPrefix(strings.TrimSpace(e.Username), "@"); username != "" {
			link = "https://t.me/" + username
		}
		name := e.FullName
		if name == "" {
			name = "Без имени"
		}
		fmt.Fprintf(&b, "%d. <a href=\"%s\">%s</a> — %d заявок, %d баллов\n",
			e.Place, html.EscapeString(link), html.EscapeString(name), e.Submissions, e.Score)
	}
	return b.String()
}

func (h *ContestHandler) handleExportRating(ctx context.Context, userID, chatID int64, messageID int) {
	messageID = h.edit(ctx, chatID, messageID, "⏳ Выгружаем рейтинг в таблицу...", nil)

	text := "✅ Рейтинг успешно выгружен!"
	if err := h.rating.SendRatingToAdmin(ctx, chatID); err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("export rating")
		text = "⚠️ Произошла ошибка при выгрузке рейтинга."
	}
	h.showPanelText(ctx, userID, chatID, messageID, text)
}

func (h *ContestHandler) handleSendNewsStart(ctx context.Context, userID, chatID int64, messageID int) {
	id := h.edit(ctx, chatID, messageID, "📢 Пришлите сообщение, которое хотите разослать участникам (текст, фото или видео):", cancelNewsKeyboard())
	h.saveAdminState(ctx, &models.AdminState{
		UserID:           userID,
		CurrentState:     fsm.StateAdminAwaitNews,
		LastBotMessageID: id,
	})
}

// dropReviewKeyboard removes the approve/reject buttons so a submission is
// reviewed once per notification.
func (h *ContestHandler) dropReviewKeyboard(ctx context.Context, chatID int64, messageID int, messageText string) {
	if messageID == 0 || messageText == "" {
		return
	}
	if err := h.bot.Edit(ctx, chatID, messageID, html.EscapeString(messageText), nil); err != nil {
		h.logger.Debug().Err(err).Int("message_id", messageID).Msg("drop review keyboard")
	}
}

func (h *ContestHandler) handleApprove(ctx context.Context, userID, chatID int64, messageID int, messageText, submissionID string) {
	h.dropReviewKeyboard(ctx, chatID, messageID, messageText)

	id := h.send(ctx, chatID, fmt.Sprintf("Введите количество баллов для заявки %s:", html.EscapeString(submissionID)), nil)
	h.saveAdminState(ctx, &models.AdminState{
		UserID:           userID,
		CurrentState:     fsm.StateAdminAwaitScore,
		SubmissionID:     submissionID,
		LastBotMessageID: id,
	})
	h.logger.Info().Int64("admin_id", userID).Str("submission_id", submissionID).Msg("submission approved, awaiting score")
}

func (h *ContestHandler) handleReject(ctx context.Context, userID, chatID int64, messageID int, messageText, submissionID string) {
	h.dropReviewKeyboard(ctx, chatID, messageID, messageText)
	h.send(ctx, chatID, "Заявка отклонена. Участник не будет уведомлён.", nil)
	h.showPanelText(ctx, userID, chatID, 0, textAdminPanel)
	h.logger.Info().Int64("admin_id", userID).Str("submission_id", submissionID).Msg("submission rejected")
}

// handleAdminInput consumes a message when the admin is in the middle of an
// admin dialogue.
func (h *ContestHandler) handleAdminInput(ctx context.Context, msg *tgmodels.Message) bool {
	state, err := h.adminStateRepo.Get(ctx, msg.From.ID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			h.logger.Error().Err(err).Int64("user_id", msg.From.ID).Msg("load admin state")
		}
		return false
	}

	switch state.CurrentState {
	case fsm.StateAdminAwaitScore:
		h.handleScoreInput(ctx, msg, state)
		return true
	case fsm.StateAdminAwaitNews:
		h.handleNewsInput(ctx, msg, state)
		return true
	default:
		return false
	}
}

func (h *ContestHandler) handleScoreInput(ctx context.Context, msg *tgmodels.Message, state *models.AdminState) {
	chatID := msg.Chat.ID

	score, err := services.ParseScore(msg.Text)
	if err != nil {
		h.send(ctx, chatID, "Пожалуйста, введите целое число баллов.", nil)
		return
	}
	if state.SubmissionID == "" {
		h.showAdminPanel(ctx, msg.From.ID, 0, "Что-то пошло не так. Повторите подтверждение заявки.")
		return
	}

	_, err = h.scoring.SetScore(ctx, state.SubmissionID, score, "")
	var notFound *services.NotFoundError
	switch {
	case err == nil:
		h.send(ctx, chatID, "✅ Баллы записаны, участник уведомлён.", nil)
	case errors.As(err, &notFound):
		h.send(ctx, chatID, "⚠️ Не удалось обновить баллы: заявка не найдена.", nil)
	default:
		h.logger.Error().Err(err).Str("submission_id", state.SubmissionID).Msg("set score")
		h.send(ctx, chatID, "⚠️ Не удалось обновить баллы. Попробуйте ещё раз.", nil)
		return
	}
	h.showAdminPanel(ctx, msg.From.ID, 0, "")
}

func (h *ContestHandler) handleNewsInput(ctx context.Context, msg *tgmodels.Message, state *models.AdminState) {
	chatID := msg.Chat.ID

	news, err := services.NewsFromMessage(msg)
	if err != nil {
		h.send(ctx, chatID, "❌ Разослать можно только текст, фото или видео. Пришлите другое сообщение.", cancelNewsKeyboard())
		return
	}

	// Leave the news state before sending so a repeated message does not
	// start a second broadcast.
	if !h.saveAdminState(ctx, &models.AdminState{UserID: msg.From.ID, CurrentState: fsm.StateAdminPanel}) {
		h.send(ctx, chatID, textStoreFailure, nil)
		return
	}
	if state.LastBotMessageID != 0 {
		if err := h.bot.Edit(ctx, chatID, state.LastBotMessageID, "📢 Рассылка запущена.", nil); err != nil {
			h.logger.Debug().Err(err).Msg("close news prompt")
		}
	}

	statusID := h.send(ctx, chatID, "⏳ Начинаем рассылку...", nil)
	result, err := h.broadcast.Broadcast(ctx, news, ParticipantMenu(), func(sent, total int) {
		if statusID == 0 {
			return
		}
		if err := h.bot.Edit(ctx, chatID, statusID, fmt.Sprintf("⏳ Отправлено %d из %d сообщений...", sent, total), nil); err != nil {
			h.logger.Debug().Err(err).Msg("update broadcast progress")
		}
	})
	if err != nil {
		h.logger.Error().Err(err).Int64("admin_id", msg.From.ID).Msg("broadcast")
		h.send(ctx, chatID, fmt.Sprintf("⚠️ Рассылка прервана. Отправлено %d из %d.", result.Sent, result.Total), nil)
	} else {
		h.send(ctx, chatID, fmt.Sprintf("✅ Рассылка завершена. Отправлено %d из %d, ошибок: %d.", result.Sent, result.Total, result.Failed), nil)
	}
	h.showAdminPanel(ctx, msg.From.ID, 0, "")
}

func (h *ContestHandler) handleAdminListCommand(ctx context.Context, userID int64, command string, args []string) {
	if command == "/admins" {
		ids, err := h.settings.GetAdmins(ctx)
		if err != nil {
			h.logger.Error().Err(err).Msg("load admins")
			h.send(ctx, userID, textStoreFailure, nil)
			return
		}
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		h.send(ctx, userID, "👥 Администраторы: "+strings.Join(parts, ", "), nil)
		return
	}

	if len(args) != 1 {
		h.send(ctx, userID, fmt.Sprintf("Использование: %s &lt;id&gt;", command), nil)
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.send(ctx, userID, fmt.Sprintf("❌ Неверный формат ID: %s", html.EscapeString(args[0])), nil)
		return
	}

	if command == "/addadmin" {
		err = h.settings.AddAdmin(ctx, id)
	} else {
		err = h.settings.RemoveAdmin(ctx, id)
	}
	switch {
	case err == nil:
		h.send(ctx, userID, "✅ Список администраторов обновлён.", nil)
		h.logger.Info().Int64("by", userID).Int64("admin_id", id).Str("command", command).Msg("admin list changed")
	case errors.Is(err, services.ErrLastAdmin):
		h.send(ctx, userID, "❌ Нельзя удалить последнего администратора.", nil)
	default:
		h.logger.Error().Err(err).Str("command", command).Msg("update admins")
		h.send(ctx, userID, "❌ Не удалось обновить список администраторов.", nil)
	}
}
