package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"GuestReportBot/internal/models/domain"
)

// Redis stores sessions as JSON values whose TTL is refreshed on every save.
type Redis struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *goredis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (s *Redis) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *Redis) Get(ctx context.Context, userID int64) (*domain.Session, error) {
	op := "sessions.Redis.Get"
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return &sess, nil
}

func (s *Redis) Save(ctx context.Context, sess *domain.Session) error {
	op := "sessions.Redis.Save"
	stored := *sess
	stored.UpdatedAt = time.Now()

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	if err := s.client.Set(ctx, s.key(sess.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, userID int64) error {
	op := "sessions.Redis.Delete"
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
