package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailmerge/mailmerge/internal/database"
	"github.com/mailmerge/mailmerge/internal/model"
)

const sessionKeyPrefix = "mailmerge:session:"

// RedisSessionStore keeps sessions in Redis as JSON with a sliding TTL
type RedisSessionStore struct {
	rdb *database.Redis
	ttl time.Duration
}

// NewRedisSessionStore creates a new RedisSessionStore
func NewRedisSessionStore(rdb *database.Redis, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(userID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}

// Get retrieves a session by user ID
func (r *RedisSessionStore) Get(ctx context.Context, userID int64) (*model.Session, error) {
	raw, err := r.rdb.GetString(ctx, sessionKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Save writes the session and refreshes its TTL
func (r *RedisSessionStore) Save(ctx context.Context, session *model.Session) error {
	if session == nil || session.UserID == 0 {
		return ErrInvalidInput
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.rdb.SetWithTTL(ctx, sessionKey(session.UserID), data, r.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session
func (r *RedisSessionStore) Delete(ctx context.Context, userID int64) error {
	if err := r.rdb.Delete(ctx, sessionKey(userID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns every stored session
func (r *RedisSessionStore) List(ctx context.Context) ([]*model.Session, error) {
	keys, err := r.rdb.ScanKeys(ctx, sessionKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]*model.Session, 0, len(keys))
	for _, key := range keys {
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, sessionKeyPrefix), 10, 64)
		if err != nil {
			continue
		}
		s, err := r.Get(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			// expired between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
