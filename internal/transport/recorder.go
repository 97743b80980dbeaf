package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	tgmodels "github.com/go-telegram/bot/models"
)

// ErrSendFailed is returned by Recorder for chats marked with FailChat.
var ErrSendFailed = errors.New("send failed")

// Kinds of recorded messages.
const (
	KindText     = "text"
	KindPhoto    = "photo"
	KindVideo    = "video"
	KindDocument = "document"
	KindEdit     = "edit"
	KindCallback = "callback"
)

// Message is one outbound call captured by Recorder.
type Message struct {
	Kind      string
	ChatID    int64
	MessageID int
	Text      string
	Markup    *tgmodels.InlineKeyboardMarkup
	Body      string
}

// Recorder is an in-memory Bot for tests and dry runs. It assigns increasing
// message ids and can be told to fail for specific chats.
type Recorder struct {
	mu        sync.Mutex
	nextID    int
	messages  []Message
	failChats map[int64]bool
	failEdits bool
}

func NewRecorder() *Recorder {
	return &Recorder{nextID: 100, failChats: make(map[int64]bool)}
}

func (r *Recorder) FailChat(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failChats[chatID] = true
}

func (r *Recorder) FailEdits(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failEdits = fail
}

func (r *Recorder) record(kind string, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChats[chatID] {
		return 0, ErrSendFailed
	}
	r.nextID++
	r.messages = append(r.messages, Message{
		Kind:      kind,
		ChatID:    chatID,
		MessageID: r.nextID,
		Text:      text,
		Markup:    markup,
	})
	return r.nextID, nil
}

func (r *Recorder) Send(ctx context.Context, chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	return r.record(KindText, chatID, text, markup)
}

func (r *Recorder) Edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgmodels.InlineKeyboardMarkup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEdits || r.failChats[chatID] {
		return ErrSendFailed
	}
	r.messages = append(r.messages, Message{
		Kind:      KindEdit,
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		Markup:    markup,
	})
	return nil
}

func (r *Recorder) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	return r.record(KindPhoto, chatID, caption, markup)
}

func (r *Recorder) SendVideo(ctx context.Context, chatID int64, fileID, caption string, markup *tgmodels.InlineKeyboardMarkup) (int, error) {
	return r.record(KindVideo, chatID, caption, markup)
}

func (r *Recorder) SendDocument(ctx context.Context, chatID int64, filename string, data io.Reader, caption string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if _, err := r.record(KindDocument, chatID, caption, nil); err != nil {
		return err
	}
	r.mu.Lock()
	r.messages[len(r.messages)-1].Body = string(body)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) AnswerCallback(ctx context.Context, callbackID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Kind: KindCallback, Text: text})
	return nil
}

// Messages returns every recorded call in order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// SentTo returns the non-edit messages delivered to chatID.
func (r *Recorder) SentTo(chatID int64) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.ChatID == chatID && m.Kind != KindEdit && m.Kind != KindCallback {
			out = append(out, m)
		}
	}
	return out
}

// EditsIn returns the edits applied in chatID.
func (r *Recorder) EditsIn(chatID int64) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.ChatID == chatID && m.Kind == KindEdit {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message sent to chatID.
func (r *Recorder) Last(chatID int64) (Message, bool) {
	sent := r.SentTo(chatID)
	if len(sent) == 0 {
		return Message{}, false
	}
	return sent[len(sent)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
