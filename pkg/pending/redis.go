package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "swipify:pending:"

// RedisStore shares pending logins between server replicas.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Put(ctx context.Context, p *PendingLogin) error {
	if err := validate(p); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending login: %w", err)
	}

	ok, err := s.client.SetNX(ctx, redisKeyPrefix+p.State, data, keepFor(p, s.now())).Result()
	if err != nil {
		return fmt.Errorf("store pending login: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Take uses GETDEL so that only one caller can observe the value.
func (s *RedisStore) Take(ctx context.Context, state string) (*PendingLogin, error) {
	data, err := s.client.GetDel(ctx, redisKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take pending login: %w", err)
	}

	var p PendingLogin
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pending login: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
