package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"lojapos/backend/internal/checkout"
	"lojapos/backend/internal/domain"
)

const (
	cartKeyPrefix     = "lojapos:cart:"
	cartLockKeyPrefix = "lojapos:cart-lock:"
	closureKeyPrefix  = "lojapos:closures:"

	// cartLockTTL bounds how long a crashed finalize can hold a cart.
	cartLockTTL = 30 * time.Second
)

// releaseCartLock deletes the lock only while it still holds our token.
var releaseCartLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) CartStore(ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{client: r.client, ttl: ttl}
}

func (r *Redis) ClosureCache() *RedisClosureCache {
	return &RedisClosureCache{client: r.client}
}

type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *RedisCartStore) Get(ctx context.Context, id string) (*checkout.Session, bool, error) {
	val, err := c.client.Get(ctx, cartKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var session checkout.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (c *RedisCartStore) Save(ctx context.Context, session *checkout.Session) error {
	if session == nil {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKeyPrefix+session.ID, payload, c.ttl).Err()
}

func (c *RedisCartStore) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, cartKeyPrefix+id).Err()
}

func (c *RedisCartStore) Lock(ctx context.Context, id string) (func(), error) {
	key := cartLockKeyPrefix + id
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, cartLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCartLocked, id)
	}
	releaseCtx := context.WithoutCancel(ctx)
	return func() {
		_ = releaseCartLock.Run(releaseCtx, c.client, []string{key}, token).Err()
	}, nil
}

type RedisClosureCache struct {
	client *redis.Client
}

func (c *RedisClosureCache) Get(ctx context.Context, date string) ([]domain.DailyClosure, bool, error) {
	val, err := c.client.Get(ctx, closureKeyPrefix+date).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var closures []domain.DailyClosure
	if err := json.Unmarshal(val, &closures); err != nil {
		return nil, false, err
	}
	return closures, true, nil
}

func (c *RedisClosureCache) Set(ctx context.Context, date string, closures []domain.DailyClosure, ttl time.Duration) error {
	payload, err := json.Marshal(closures)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, closureKeyPrefix+date, payload, ttl).Err()
}

func (c *RedisClosureCache) Invalidate(ctx context.Context, date string) error {
	return c.client.Del(ctx, closureKeyPrefix+date).Err()
}
