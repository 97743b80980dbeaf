// Package assistant answers free-form participant questions about the contest.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ad/go-telegram-contest/internal/metrics"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Apology is returned whenever no answer could be produced.
const Apology = "Извините, я пока не могу ответить. Попробуйте позже или обратитесь к организаторам."

// Answerer never fails: on error it answers with Apology.
type Answerer interface {
	Answer(ctx context.Context, question string) string
}

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration

	ContestStart time.Time
	ContestEnd   time.Time
	RulesLink    string
}

type OpenAI struct {
	client *openai.Client
	cfg    Config
	system string
	tracer trace.Tracer
	logger zerolog.Logger
}

func NewOpenAI(cfg Config, logger zerolog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		system: SystemPrompt(cfg.ContestStart, cfg.ContestEnd, cfg.RulesLink),
		tracer: otel.Tracer("github.com/ad/go-telegram-contest/internal/assistant"),
		logger: logger.With().Str("component", "assistant").Logger(),
	}, nil
}

func (a *OpenAI) Answer(parent context.Context, question string) string {
	ctx, span := a.tracer.Start(parent, "assistant.answer", trace.WithAttributes(
		attribute.String("model", a.cfg.Model),
		attribute.Int("question.length", len(question)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.system},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	metrics.AssistantLatency().Observe(time.Since(start).Seconds())

	if err == nil && (len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "") {
		err = errors.New("empty completion")
	}
	if err != nil {
		metrics.AssistantRequests().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Error().Err(err).Msg("assistant request failed")
		return Apology
	}

	metrics.AssistantRequests().WithLabelValues("ok").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

// Unavailable is used when no API key is configured.
type Unavailable struct{}

func (Unavailable) Answer(context.Context, string) string {
	metrics.AssistantRequests().WithLabelValues("disabled").Inc()
	return Apology
}

// SystemPrompt describes the contest for the model.
func SystemPrompt(start, end time.Time, rulesLink string) string {
	var b strings.Builder
	b.WriteString("Ты дружелюбный помощник фотоконкурса у памятников защитникам Отечества. ")
	if !start.IsZero() {
		fmt.Fprintf(&b, "Конкурс принимает фото и видео, снятые не раньше %s", start.Format("02.01.2006"))
		if !end.IsZero() {
			fmt.Fprintf(&b, " и не позже %s", end.Format("02.01.2006"))
		}
		b.WriteString(". ")
	}
	b.WriteString("Чтобы участвовать, нужно сделать фото или видео у памятника, опубликовать его в соцсетях " +
		"и подать заявку в этом боте: ссылка на пост, дата съёмки, место и название объекта. " +
		"За каждую одобренную заявку администратор начисляет баллы.\n")
	if rulesLink != "" {
		fmt.Fprintf(&b, "Полные правила: %s\n", rulesLink)
	}
	b.WriteString("Отвечай коротко и по-человечески, разделяй мысли на абзацы. " +
		"Если не знаешь точного ответа, предложи уточнить у организаторов.")
	return b.String()
}
