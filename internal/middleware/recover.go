package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrPanic is returned in place of a recovered panic
var ErrPanic = errors.New("panic while handling update")

// Recover recovers from panics and logs the error
func (m *Middleware) Recover(next Handler) Handler {
	return func(ctx context.Context, u tgbotapi.Update) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				m.log.Error().
					Interface("error", rec).
					Str("stack", string(debug.Stack())).
					Str("update_id", GetUpdateID(ctx)).
					Int64("user_id", UserID(u)).
					Msg("panic recovered")

				err = fmt.Errorf("%w: %v", ErrPanic, rec)
			}
		}()

		return next(ctx, u)
	}
}
