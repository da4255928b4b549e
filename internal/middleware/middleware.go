package middleware

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mailmerge/mailmerge/internal/config"
	"github.com/mailmerge/mailmerge/internal/logger"
)

// Handler processes one Telegram update
type Handler func(ctx context.Context, u tgbotapi.Update) error

// Middleware holds all update middleware
type Middleware struct {
	log     *logger.Logger
	cfg     config.RateLimitConfig
	counter Counter
}

// New creates a new Middleware instance
func New(log *logger.Logger, cfg config.RateLimitConfig, counter Counter) *Middleware {
	return &Middleware{
		log:     log,
		cfg:     cfg,
		counter: counter,
	}
}

// Chain wraps h so that the first middleware runs first
func Chain(h Handler, mws ...func(Handler) Handler) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
