package middleware

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UpdateIDKey  contextKey = "update_id"
	StartTimeKey contextKey = "start_time"
)

// UpdateID adds a unique ID and the start time to each update's context
func (m *Middleware) UpdateID(next Handler) Handler {
	return func(ctx context.Context, u tgbotapi.Update) error {
		ctx = context.WithValue(ctx, UpdateIDKey, uuid.New().String())
		ctx = context.WithValue(ctx, StartTimeKey, time.Now())
		return next(ctx, u)
	}
}

// GetUpdateID retrieves the update ID from context
func GetUpdateID(ctx context.Context) string {
	if id, ok := ctx.Value(UpdateIDKey).(string); ok {
		return id
	}
	return ""
}

// GetStartTime retrieves the start time from context
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// UserID returns the ID of the user who sent u, or 0
func UserID(u tgbotapi.Update) int64 {
	if user := u.SentFrom(); user != nil {
		return user.ID
	}
	return 0
}

// Kind names the content of u for logs
func Kind(u tgbotapi.Update) string {
	switch {
	case u.CallbackQuery != nil:
		return "callback"
	case u.Message == nil:
		return "other"
	case u.Message.IsCommand():
		return "command"
	case u.Message.Document != nil:
		return "document"
	case u.Message.Text != "":
		return "text"
	default:
		return "other"
	}
}
