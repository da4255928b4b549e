package handler

import (
	"context"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mailmerge/mailmerge/internal/database"
	"github.com/mailmerge/mailmerge/internal/logger"
	"github.com/mailmerge/mailmerge/internal/service"
)

// Conversation handles chat events
type Conversation interface {
	Handle(ctx context.Context, ev service.Event, out service.Responder) error
}

// Handler routes Telegram updates to the conversation and serves health probes
type Handler struct {
	tg    *Telegram
	conv  Conversation
	rdb   *database.Redis
	log   *logger.Logger
	ready atomic.Bool
}

// New creates a new Handler instance. rdb may be nil when sessions live in memory.
func New(tg *Telegram, conv Conversation, rdb *database.Redis, log *logger.Logger) *Handler {
	return &Handler{
		tg:   tg,
		conv: conv,
		rdb:  rdb,
		log:  log.WithComponent("handler"),
	}
}

// HandleUpdate passes one update to the conversation
func (h *Handler) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	if err := h.tg.AnswerCallback(u); err != nil {
		h.log.Warn().Err(err).Msg("failed to answer callback query")
	}

	ev, ok := Event(u)
	if !ok {
		return nil
	}
	return h.conv.Handle(ctx, ev, h.tg.Responder(u))
}

// ReplyError tells the user that their last message could not be processed
func (h *Handler) ReplyError(ctx context.Context, u tgbotapi.Update) {
	if u.FromChat() == nil {
		return
	}
	if err := h.tg.Responder(u).Reply(ctx, service.Reply{Text: service.InternalErrorText}); err != nil {
		h.log.Error().Err(err).Msg("failed to send error reply")
	}
}

// MarkReady is called once update polling has started
func (h *Handler) MarkReady() {
	h.ready.Store(true)
}
