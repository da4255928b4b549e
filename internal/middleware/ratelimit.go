package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrRateLimited is returned for updates dropped by RateLimit
var ErrRateLimited = errors.New("too many updates")

// Counter counts events per key in fixed windows
type Counter interface {
	// IncrWindow increments key and returns the count in the current window
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit drops updates from a user who exceeded the configured limit
func (m *Middleware) RateLimit(next Handler) Handler {
	return func(ctx context.Context, u tgbotapi.Update) error {
		userID := UserID(u)
		if !m.cfg.Enabled || m.counter == nil || userID == 0 {
			return next(ctx, u)
		}

		key := fmt.Sprintf("mailmerge:ratelimit:%d", userID)

		count, err := m.counter.IncrWindow(ctx, key, m.cfg.Window)
		if err != nil {
			m.log.Error().Err(err).Msg("failed to increment rate limit counter")
			return next(ctx, u)
		}

		if int(count) > m.cfg.Limit {
			m.log.Warn().
				Int64("user_id", userID).
				Int64("count", count).
				Msg("rate limit exceeded, update dropped")
			return ErrRateLimited
		}

		return next(ctx, u)
	}
}

// MemoryCounter is a Counter kept in process memory
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*counterWindow
	now     func() time.Time
}

type counterWindow struct {
	count int64
	reset time.Time
}

// NewMemoryCounter creates a new MemoryCounter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*counterWindow),
		now:     time.Now,
	}
}

// IncrWindow implements Counter
func (c *MemoryCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &counterWindow{reset: now.Add(window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}
