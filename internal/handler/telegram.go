package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/mailmerge/mailmerge/internal/service"
)

// BotAPI is the part of the Telegram client the bot uses
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetMe() (tgbotapi.User, error)
}

// Telegram adapts the Bot API to the conversation service
type Telegram struct {
	bot    BotAPI
	client *http.Client
}

// NewTelegram creates a new Telegram adapter
func NewTelegram(bot BotAPI) *Telegram {
	return &Telegram{
		bot:    bot,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Event converts an update into a conversation event.
// Updates the conversation has no use for return false.
func Event(u tgbotapi.Update) (service.Event, bool) {
	if q := u.CallbackQuery; q != nil && q.From != nil {
		return service.Event{
			UserID:       q.From.ID,
			UserName:     q.From.FirstName,
			Kind:         service.EventCallback,
			CallbackData: q.Data,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.From == nil {
		return service.Event{}, false
	}

	ev := service.Event{UserID: msg.From.ID, UserName: msg.From.FirstName}
	switch {
	case msg.IsCommand():
		ev.Kind = service.EventCommand
		ev.Command = msg.Command()
	case msg.Document != nil:
		ev.Kind = service.EventDocument
		ev.Document = &service.Document{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			MimeType: msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
		}
	case msg.Text != "":
		ev.Kind = service.EventText
		ev.Text = msg.Text
	default:
		return service.Event{}, false
	}
	return ev, true
}

// Fetch downloads an uploaded file
func (t *Telegram) Fetch(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// AnswerCallback stops the client's loading indicator on a pressed button
func (t *Telegram) AnswerCallback(u tgbotapi.Update) error {
	if u.CallbackQuery == nil {
		return nil
	}
	_, err := t.bot.Request(tgbotapi.NewCallback(u.CallbackQuery.ID, ""))
	return err
}

// Responder returns a service.Responder answering the chat of u
func (t *Telegram) Responder(u tgbotapi.Update) service.Responder {
	r := &chatResponder{bot: t.bot}
	if chat := u.FromChat(); chat != nil {
		r.chatID = chat.ID
	}
	if q := u.CallbackQuery; q != nil && q.Message != nil {
		r.messageID = q.Message.MessageID
	}
	return r
}

type chatResponder struct {
	bot       BotAPI
	chatID    int64
	messageID int
}

func (r *chatResponder) Reply(_ context.Context, reply service.Reply) error {
	msg := tgbotapi.NewMessage(r.chatID, reply.Text)
	if len(reply.Buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(lo.Map(reply.Buttons, func(b service.Button, _ int) tgbotapi.InlineKeyboardButton {
				return tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)
			})...),
		)
	}
	if _, err := r.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// Edit replaces the message carrying the pressed button, or sends a new one
func (r *chatResponder) Edit(ctx context.Context, text string) error {
	if r.messageID == 0 {
		return r.Reply(ctx, service.Reply{Text: text})
	}
	if _, err := r.bot.Request(tgbotapi.NewEditMessageText(r.chatID, r.messageID, text)); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}
