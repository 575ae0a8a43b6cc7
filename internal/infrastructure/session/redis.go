package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

const (
	redisKeyPrefix    = "knowledgesync:session:"
	connectionTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// RedisStore keeps sessions as JSON documents in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.SessionStore = (*RedisStore)(nil)

// NewRedisClient connects and pings Redis.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps a connected client. A zero ttl keeps sessions forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the stored session or an empty one for key.
func (r *RedisStore) Load(ctx context.Context, key string) (domain.UploadSession, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UploadSession{Key: key}, nil
	}
	if err != nil {
		return domain.UploadSession{}, fmt.Errorf("get session: %w", err)
	}

	var s domain.UploadSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.UploadSession{}, fmt.Errorf("decode session: %w", err)
	}
	s.Key = key
	return s, nil
}

// Save writes the session under session.Key.
func (r *RedisStore) Save(ctx context.Context, s domain.UploadSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.Key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}
