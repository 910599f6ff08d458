package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/redis/go-redis/v9"
)

const (
	fieldUserID = "user_id"
	fieldFlash  = "flash"
)

// RedisStore keeps each session in a hash at session:<id> and indexes a
// user's sessions in the set user_sessions:<uid>.
type RedisStore struct {
	client  redis.UniversalClient
	ttl     time.Duration
	prefix  string
	timeout time.Duration
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "accounts:", timeout: 2 * time.Second}
}

func (s *RedisStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user_sessions:" + userID
}

func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Create(ctx context.Context, userID string) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.sessionKey(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldUserID, userID)
		pipe.Expire(ctx, key, s.ttl)
		if userID != "" {
			pipe.SAdd(ctx, s.userKey(userID), id)
			pipe.Expire(ctx, s.userKey(userID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis create session: %w", err)
	}
	return &Session{ID: id, UserID: userID}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.sessionKey(id)
	userID, err := s.client.HGet(ctx, key, fieldUserID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, key, s.ttl)
		if userID != "" {
			pipe.Expire(ctx, s.userKey(userID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis touch session: %w", err)
	}
	return &Session{ID: id, UserID: userID}, nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.sessionKey(id)
	userID, err := s.client.HGet(ctx, key, fieldUserID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis destroy session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if userID != "" {
			pipe.SRem(ctx, s.userKey(userID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis destroy session: %w", err)
	}
	return nil
}

func (s *RedisStore) DestroyAll(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis destroy sessions: %w", err)
	}
	return nil
}

func (s *RedisStore) SetFlash(ctx context.Context, id, message string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.sessionKey(id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis set flash: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	if err := s.client.HSet(ctx, key, fieldFlash, message).Err(); err != nil {
		return fmt.Errorf("redis set flash: %w", err)
	}
	return nil
}

func (s *RedisStore) PopFlash(ctx context.Context, id string) (string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.sessionKey(id)
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, key, fieldFlash)
		pipe.HDel(ctx, key, fieldFlash)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis pop flash: %w", err)
	}
	msg, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return msg, err
}
