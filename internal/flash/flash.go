// Package flash stores one-shot user notices between a redirect and the
// next full page render.
package flash

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	LevelSuccess = "success"
	LevelWarning = "warning"
)

type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Store queues notices per account. Add enqueues, Pop drains.
type Store interface {
	Add(ctx context.Context, accountID string, n Notice) error
	Pop(ctx context.Context, accountID string) ([]Notice, error)
}

// RedisStore keeps pending notices in a Redis list per account.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: 10 * time.Minute}
}

func (s *RedisStore) Add(ctx context.Context, accountID string, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := flashKey(accountID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Pop(ctx context.Context, accountID string) ([]Notice, error) {
	key := flashKey(accountID)
	pipe := s.client.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	raw, err := items.Result()
	if err != nil {
		return nil, err
	}
	notices := make([]Notice, 0, len(raw))
	for _, item := range raw {
		var n Notice
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		notices = append(notices, n)
	}
	return notices, nil
}

func flashKey(accountID string) string {
	return "flash:" + accountID
}
