package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func newTestAssistant(t *testing.T, handler http.HandlerFunc) *OpenAI {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewOpenAI(Config{
		APIKey:       "test-key",
		BaseURL:      srv.URL + "/v1",
		Timeout:      time.Second,
		ContestStart: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		ContestEnd:   time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC),
		RulesLink:    "https://example.org/rules",
	}, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func TestAnswerReturnsCompletion(t *testing.T) {
	var (
		got        openai.ChatCompletionRequest
		path, auth string
	)
	a := newTestAssistant(t, func(w http.ResponseWriter, r *http.Request) {
		path, auth = r.URL.Path, r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "  Да, можно.  "},
			}},
		})
	})

	answer := a.Answer(context.Background(), "Можно ли прислать видео?")

	require.Equal(t, "Да, можно.", answer)
	require.Equal(t, "/v1/chat/completions", path)
	require.Equal(t, "Bearer test-key", auth)
	require.Equal(t, openai.GPT3Dot5Turbo, got.Model)
	require.Equal(t, 400, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	require.Contains(t, got.Messages[0].Content, "01.04.2025")
	require.Equal(t, "Можно ли прислать видео?", got.Messages[1].Content)
}

func TestAnswerFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"blank answer", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssistant(t, tt.handler)
			a.cfg.Timeout = 100 * time.Millisecond
			require.Equal(t, Apology, a.Answer(context.Background(), "вопрос?"))
		})
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(Config{}, zerolog.Nop())
	require.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	require.Equal(t, Apology, Unavailable{}.Answer(context.Background(), "?"))
}

func TestSystemPrompt(t *testing.T) {
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	open := SystemPrompt(start, time.Time{}, "")
	require.Contains(t, open, "01.04.2025")
	require.NotContains(t, open, "не позже")
	require.NotContains(t, open, "Полные правила")

	full := SystemPrompt(start, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC), "https://example.org/rules")
	require.True(t, strings.Contains(full, "30.11.2025"))
	require.Contains(t, full, "https://example.org/rules")
}
