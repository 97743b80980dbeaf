package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ad/go-telegram-contest/internal/assistant"
	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/intake"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/services"
	"github.com/ad/go-telegram-contest/internal/transport"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

// Main menu callbacks.
const (
	CallbackInfo   = "menu_info"
	CallbackApply  = "menu_apply"
	CallbackScores = "menu_scores"
)

const (
	textNoAccess     = "❌ У вас нет доступа."
	textAskQuestion  = "Вы можете задать вопрос — я постараюсь помочь 🤖"
	textThinking     = "Вы задали вопрос. Сейчас постараюсь ответить..."
	textApplyHint    = "Это заявка на конкурс? Если да — нажмите «📨 Подать заявку», чтобы мы её учли."
	textMenuHint     = "Вы хотите подать заявку или задать вопрос?"
	textOnlyText     = "Извините, я понимаю только текстовые сообщения. Вы можете задать вопрос или использовать кнопки меню."
	textNoDraft      = "Нет заявки, которую можно отменить."
	textNoScores     = "Вы ещё не подавали заявок."
	textStoreFailure = "⚠️ Не удалось загрузить данные. Попробуйте позже."
	textMainMenu     = "👇 Главное меню:"
)

// ContestInfo is what the info screen and the assistant know about the
// contest.
type ContestInfo struct {
	Start     time.Time
	End       time.Time
	RulesLink string
}

// ContestHandler routes Telegram updates to the submission dialogue, the
// participant menu and the admin panel.
type ContestHandler struct {
	bot            transport.Bot
	machine        *intake.Machine
	authMiddleware *services.AdminAuthMiddleware
	adminStateRepo *db.AdminStateRepository
	participants   *services.ParticipantManager
	scoring        *services.ScoringManager
	broadcast      *services.BroadcastManager
	rating         *services.RatingManager
	settings       *services.SettingsManager
	assistant      assistant.Answerer
	info           ContestInfo
	logger         zerolog.Logger
}

func NewContestHandler(
	b transport.Bot,
	machine *intake.Machine,
	authMiddleware *services.AdminAuthMiddleware,
	adminStateRepo *db.AdminStateRepository,
	participants *services.ParticipantManager,
	scoring *services.ScoringManager,
	broadcast *services.BroadcastManager,
	rating *services.RatingManager,
	settings *services.SettingsManager,
	answerer assistant.Answerer,
	info ContestInfo,
	logger zerolog.Logger,
) *ContestHandler {
	if answerer == nil {
		answerer = assistant.Unavailable{}
	}
	return &ContestHandler{
		bot:            b,
		machine:        machine,
		authMiddleware: authMiddleware,
		adminStateRepo: adminStateRepo,
		participants:   participants,
		scoring:        scoring,
		broadcast:      broadcast,
		rating:         rating,
		settings:       settings,
		assistant:      answerer,
		info:           info,
		logger:         logger.With().Str("component", "handlers").Logger(),
	}
}

func (h *ContestHandler) HandleCommand(ctx context.Context, msg *tgmodels.Message) bool {
	if msg.From == nil || !strings.HasPrefix(msg.Text, "/") {
		return false
	}
	args := strings.Fields(msg.Text)
	command, _, _ := strings.Cut(args[0], "@")
	userID := msg.From.ID
	h.touch(ctx, msg.From)

	switch command {
	case "/start":
		h.clearAdminState(ctx, userID)
		h.showMainMenu(ctx, userID, greeting(msg.From))
		return true
	case "/apply":
		h.machine.Start(ctx, userID)
		return true
	case "/info":
		h.showInfo(ctx, userID)
		return true
	case "/scores":
		h.showScores(ctx, userID)
		return true
	case "/cancel":
		h.handleCancelCommand(ctx, userID)
		return true
	case "/admin":
		if !h.authMiddleware.IsAuthorized(ctx, userID) {
			h.send(ctx, userID, "❌ У вас нет доступа к админ-панели.", nil)
			return true
		}
		h.showAdminPanel(ctx, userID, 0, "")
		return true
	case "/admins", "/addadmin", "/deladmin":
		if !h.authMiddleware.IsAuthorized(ctx, userID) {
			h.send(ctx, userID, textNoAccess, nil)
			return true
		}
		h.handleAdminListCommand(ctx, userID, command, args[1:])
		return true
	default:
		return false
	}
}

func (h *ContestHandler) HandleMessage(ctx context.Context, msg *tgmodels.Message) bool {
	if msg.From == nil {
		return false
	}
	userID := msg.From.ID
	h.touch(ctx, msg.From)

	if h.authMiddleware.IsAuthorized(ctx, userID) && h.handleAdminInput(ctx, msg) {
		return true
	}

	ev := intake.Event{
		ParticipantID: userID,
		Username:      msg.From.Username,
		FullName:      fullName(msg.From),
		Kind:          intake.InputText,
		Text:          msg.Text,
		MessageID:     msg.ID,
	}
	if msg.Text == "" {
		ev.Kind = intake.InputMedia
	}
	if out := h.machine.HandleInput(ctx, ev); out.Handled() {
		return true
	}

	h.handleFreeText(ctx, msg)
	return true
}

func (h *ContestHandler) HandleCallback(ctx context.Context, callback *tgmodels.CallbackQuery) bool {
	if err := h.bot.AnswerCallback(ctx, callback.ID, ""); err != nil {
		h.logger.Debug().Err(err).Msg("answer callback")
	}

	userID := callback.From.ID
	data := callback.Data
	chatID := userID
	messageID := 0
	var messageText string
	if msg := callback.Message.Message; msg != nil {
		chatID = msg.Chat.ID
		messageID = msg.ID
		messageText = msg.Text
	}

	h.logger.Debug().Int64("user_id", userID).Str("data", data).Msg("callback received")
	h.touch(ctx, &callback.From)

	switch {
	case data == CallbackInfo:
		h.showInfo(ctx, chatID)
		return true
	case data == CallbackApply:
		h.machine.Start(ctx, userID)
		return true
	case data == CallbackScores:
		h.showScores(ctx, chatID)
		return true
	case data == intake.CallbackAskGPT:
		h.machine.Cancel(ctx, userID)
		h.send(ctx, chatID, textAskQuestion, nil)
		h.showMainMenu(ctx, userID, textMainMenu)
		return true
	case strings.HasPrefix(data, "submit:"):
		out := h.machine.HandleInput(ctx, intake.Event{
			ParticipantID: userID,
			Username:      callback.From.Username,
			FullName:      fullName(&callback.From),
			Kind:          intake.InputButton,
			Button:        data,
			MessageID:     messageID,
		})
		if out.Kind == intake.OutcomeCancelled || out.Kind == intake.OutcomeCommitted {
			h.showMainMenu(ctx, userID, textMainMenu)
		}
		return true
	case strings.HasPrefix(data, "admin_"), data == callbackCancelNews,
		strings.HasPrefix(data, intake.ApprovePrefix), strings.HasPrefix(data, intake.RejectPrefix):
		if !h.authMiddleware.IsAuthorized(ctx, userID) {
			h.send(ctx, chatID, textNoAccess, nil)
			return true
		}
		h.handleAdminCallback(ctx, userID, chatID, messageID, messageText, data)
		return true
	default:
		h.logger.Warn().Str("data", data).Msg("unknown callback")
		return false
	}
}

func (h *ContestHandler) handleCancelCommand(ctx context.Context, userID int64) {
	if state, err := h.adminStateRepo.Get(ctx, userID); err == nil && state.CurrentState != fsm.StateAdminPanel {
		h.showAdminPanel(ctx, userID, 0, "❌ Действие отменено.")
		return
	}
	if out := h.machine.Cancel(ctx, userID); !out.Handled() {
		h.send(ctx, userID, textNoDraft, nil)
	}
	h.showMainMenu(ctx, userID, textMainMenu)
}

// handleFreeText answers messages that arrive outside any dialogue.
func (h *ContestHandler) handleFreeText(ctx context.Context, msg *tgmodels.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case text == "":
		h.send(ctx, chatID, textOnlyText, nil)
	case strings.HasPrefix(text, "http"):
		h.send(ctx, chatID, textApplyHint, h.mainMenuKeyboard(ctx, msg.From.ID))
	case intake.LooksLikeQuestion(text):
		h.send(ctx, chatID, textThinking, nil)
		answer := h.assistant.Answer(ctx, text)
		h.send(ctx, chatID, html.EscapeString(answer), h.mainMenuKeyboard(ctx, msg.From.ID))
	default:
		h.send(ctx, chatID, textMenuHint, h.mainMenuKeyboard(ctx, msg.From.ID))
	}
}

func (h *ContestHandler) showMainMenu(ctx context.Context, userID int64, text string) {
	h.send(ctx, userID, text, h.mainMenuKeyboard(ctx, userID))
}

func (h *ContestHandler) mainMenuKeyboard(ctx context.Context, userID int64) *tgmodels.InlineKeyboardMarkup {
	rows := participantMenuRows()
	if h.authMiddleware.IsAuthorized(ctx, userID) {
		rows = append(rows, transport.Row(transport.Button("🛡 Админ-панель", callbackAdminPanel)))
	}
	return transport.Keyboard(rows...)
}

// ParticipantMenu is the main menu without admin entries. Broadcasts carry it.
func ParticipantMenu() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(participantMenuRows()...)
}

func participantMenuRows() [][]tgmodels.InlineKeyboardButton {
	return [][]tgmodels.InlineKeyboardButton{
		transport.Row(transport.Button("📌 Узнать о конкурсе", CallbackInfo)),
		transport.Row(transport.Button("📨 Подать заявку", CallbackApply)),
		transport.Row(transport.Button("⭐️ Мои баллы", CallbackScores)),
	}
}

func (h *ContestHandler) showInfo(ctx context.Context, chatID int64) {
	var b strings.Builder
	b.WriteString("Конкурс «Эстафета Победы. От памятника к памяти» ")
	if h.info.End.IsZero() {
		fmt.Fprintf(&b, "проходит с %s.\n\n", h.info.Start.Format(intake.DateLayout))
	} else {
		fmt.Fprintf(&b, "проходит с %s по %s.\n\n", h.info.Start.Format(intake.DateLayout), h.info.End.Format(intake.DateLayout))
	}
	b.WriteString("Участники публикуют фото или видео с памятниками и знаковыми местами, " +
		"используют хештег #ОтПамятникаКПамяти и подают заявку через этот бот.\n\n" +
		"Баллы начисляются за каждый объект, а активные участники получают призы.")
	if h.info.RulesLink != "" {
		fmt.Fprintf(&b, "\n\n📄 Полное положение: %s", html.EscapeString(h.info.RulesLink))
	}
	h.send(ctx, chatID, b.String(), nil)
}

func (h *ContestHandler) showScores(ctx context.Context, userID int64) {
	subs, total, err := h.scoring.MyScores(ctx, userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("load scores")
		h.send(ctx, userID, textStoreFailure, nil)
		return
	}
	if len(subs) == 0 {
		h.send(ctx, userID, textNoScores, nil)
		return
	}
	h.send(ctx, userID, scoresText(subs, total), nil)
}

func scoresText(subs []*models.Submission, total int) string {
	var b strings.Builder
	b.WriteString("Ваши заявки и баллы:\n\n")
	for _, s := range subs {
		points := "на проверке"
		if s.Score != nil {
			points = fmt.Sprintf("%d", *s.Score)
		}
		fmt.Fprintf(&b, "📅 %s, 📍 %s, 🏛 %s — баллы: %s\n",
			html.EscapeString(s.Date),
			html.EscapeString(s.Location),
			html.EscapeString(s.Name),
			points,
		)
	}
	fmt.Fprintf(&b, "\nОбщая сумма баллов: %d", total)
	return b.String()
}

func (h *ContestHandler) touch(ctx context.Context, u *tgmodels.User) {
	h.participants.Touch(ctx, u.ID, u.Username, fullName(u))
}

func (h *ContestHandler) send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) int {
	id, err := h.bot.Send(ctx, chatID, text, markup)
	if err != nil {
		h.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
		return 0
	}
	return id
}

// edit falls back to a new message when messageID is unknown or the edit
// fails. It returns the id of the message now showing text.
func (h *ContestHandler) edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgmodels.InlineKeyboardMarkup) int {
	if messageID != 0 {
		err := h.bot.Edit(ctx, chatID, messageID, text, markup)
		if err == nil {
			return messageID
		}
		h.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("edit message")
	}
	return h.send(ctx, chatID, text, markup)
}

func (h *ContestHandler) clearAdminState(ctx context.Context, userID int64) {
	if err := h.adminStateRepo.Clear(ctx, userID); err != nil && !errors.Is(err, db.ErrNotFound) {
		h.logger.Warn().Err(err).Int64("user_id", userID).Msg("clear admin state")
	}
}

func fullName(u *tgmodels.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func greeting(u *tgmodels.User) string {
	name := u.FirstName
	if name == "" {
		name = u.Username
	}
	return fmt.Sprintf("Привет, %s!\nТы в конкурсе «Эстафета Победы». Выбирай, что хочешь сделать:", html.EscapeString(name))
}
