package intake

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	tgmodels "github.com/go-telegram/bot/models"
)

// Callback payloads of the submission dialogue buttons.
const (
	CallbackConfirm = "submit:confirm"
	CallbackCancel  = "submit:cancel"
	CallbackResume  = "submit:resume"
	CallbackRestart = "submit:restart"
	CallbackMenu    = "submit:menu"
	CallbackAskGPT  = "ask_gpt"

	ApprovePrefix = "approve_"
	RejectPrefix  = "reject_"
)

const (
	textCancelled     = "Подача заявки отменена."
	textMenuReturn    = "Черновик заявки удалён."
	textAccepted      = "✅ Ваша заявка принята! Спасибо за участие."
	textApology       = "⚠️ Не удалось сохранить данные. Попробуйте ещё раз чуть позже."
	textDuplicateLink = "Эта ссылка уже была подана. Пришлите ссылку на другой пост."
)

var stepNames = map[fsm.Phase]string{
	fsm.PhaseAwaitingLink:         "ссылка на пост",
	fsm.PhaseAwaitingDate:         "дата съёмки",
	fsm.PhaseAwaitingLocation:     "место съёмки",
	fsm.PhaseAwaitingName:         "название объекта",
	fsm.PhaseAwaitingConfirmation: "подтверждение",
}

func cancelKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(transport.Button("🔙 Вернуться в меню", CallbackCancel)),
	)
}

func confirmKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(
			transport.Button("✅ Подтвердить", CallbackConfirm),
			transport.Button("❌ Отменить", CallbackCancel),
		),
	)
}

func questionKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(transport.Button("🤖 Задать вопрос", CallbackAskGPT)),
		transport.Row(transport.Button("🔙 Вернуться в меню", CallbackCancel)),
	)
}

func recoveryKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(transport.Button("▶️ Продолжить", CallbackResume)),
		transport.Row(transport.Button("🔄 Начать заново", CallbackRestart)),
		transport.Row(transport.Button("🏠 Главное меню", CallbackMenu)),
	)
}

// ReviewKeyboard is attached to admin notifications about a new submission.
func ReviewKeyboard(submissionID string) *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(
			transport.Button("✅ Подтвердить", ApprovePrefix+submissionID),
			transport.Button("❌ Отклонить", RejectPrefix+submissionID),
		),
	)
}

// NudgeKeyboard offers to continue or abandon a stale draft.
func NudgeKeyboard() *tgmodels.InlineKeyboardMarkup {
	return transport.Keyboard(
		transport.Row(
			transport.Button("▶️ Продолжить", CallbackResume),
			transport.Button("🗑 Отказаться", CallbackCancel),
		),
	)
}

func promptText(cp *models.Checkpoint) string {
	switch cp.Phase {
	case fsm.PhaseAwaitingLink:
		return "Пожалуйста, пришлите ссылку на пост с фотографией у памятника."
	case fsm.PhaseAwaitingDate:
		return "Спасибо! Теперь введите дату съёмки (ДД.ММ.ГГГГ):"
	case fsm.PhaseAwaitingLocation:
		return "Отлично! Теперь введите место съёмки:"
	case fsm.PhaseAwaitingName:
		return "Теперь введите название памятника или мероприятия:"
	case fsm.PhaseAwaitingConfirmation:
		return "Проверьте заявку:\n\n" + summary(cp.Data) + "\n\nВсё верно?"
	default:
		return ""
	}
}

func promptKeyboard(phase fsm.Phase) *tgmodels.InlineKeyboardMarkup {
	if phase == fsm.PhaseAwaitingConfirmation {
		return confirmKeyboard()
	}
	return cancelKeyboard()
}

func summary(data map[fsm.Field]string) string {
	return fmt.Sprintf("🔗 %s\n📅 %s\n📍 %s\n🏛 %s",
		html.EscapeString(data[fsm.FieldLink]),
		html.EscapeString(data[fsm.FieldDate]),
		html.EscapeString(data[fsm.FieldLocation]),
		html.EscapeString(data[fsm.FieldName]),
	)
}

func recoveryText(phase fsm.Phase) string {
	return fmt.Sprintf("У вас есть незавершённая заявка (шаг: %s). Продолжить с того же места?", stepNames[phase])
}

// AdminNotification describes a committed submission for administrators.
func AdminNotification(s *models.Submission) string {
	var b strings.Builder
	b.WriteString("📥 Новая заявка:\n")
	fmt.Fprintf(&b, "👤 %s", html.EscapeString(s.FullName))
	if s.Username != "" {
		fmt.Fprintf(&b, " (@%s)", html.EscapeString(s.Username))
	}
	fmt.Fprintf(&b, "\n🏛 %s\n📅 %s, %s\n🔗 %s\n🆔 %s",
		html.EscapeString(s.Name),
		html.EscapeString(s.Date),
		html.EscapeString(s.Location),
		html.EscapeString(s.Link),
		s.ID,
	)
	return b.String()
}

// rejectionText explains why an input was not accepted.
func (m *Machine) rejectionText(err error) string {
	var dup *DuplicateLinkError
	if errors.As(err, &dup) {
		return textDuplicateLink
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		return textApology
	}

	switch verr.Reason {
	case ReasonFormat:
		return "Неверный формат даты. Нужен формат ДД.ММ.ГГГГ, например 15.04.2025."
	case ReasonFuture:
		return "Дата съёмки не может быть в будущем."
	case ReasonTooEarly:
		return fmt.Sprintf("Съёмка должна быть сделана не раньше %s.", m.rules.Start.Format(DateLayout))
	case ReasonTooLate:
		return fmt.Sprintf("Конкурс принимает съёмку не позже %s.", m.rules.End.Format(DateLayout))
	case ReasonEmpty:
		return "Сообщение пустое."
	case ReasonTooShort:
		return fmt.Sprintf("Слишком коротко: нужно не меньше %d символов.", minTextLength)
	case ReasonTooLong:
		if verr.Field == fsm.FieldLink {
			return "Ссылка слишком длинная."
		}
		return fmt.Sprintf("Слишком длинно: не больше %d символов.", maxTextLength)
	case ReasonNotURL:
		return "Это не похоже на ссылку. Пришлите ссылку, начинающуюся с http:// или https://."
	case ReasonQuestion:
		return "Похоже, вы хотите задать вопрос. Если да, нажмите кнопку 👇"
	case ReasonNotText:
		return "Пожалуйста, отправьте ответ текстом."
	case ReasonNotButton:
		return "Подтвердите заявку кнопкой ниже или отмените её."
	default:
		return "Не удалось принять ответ."
	}
}
