package middleware

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Logger logs every handled update and any error it produced
func (m *Middleware) Logger(next Handler) Handler {
	return func(ctx context.Context, u tgbotapi.Update) error {
		err := next(ctx, u)

		log := m.log.WithUpdateID(GetUpdateID(ctx))
		duration := time.Since(GetStartTime(ctx))
		if err != nil {
			log.Error().Err(err).
				Str("kind", Kind(u)).
				Int64("user_id", UserID(u)).
				Dur("duration", duration).
				Msg("update failed")
			return err
		}

		log.Update(Kind(u), UserID(u), duration)
		return nil
	}
}
