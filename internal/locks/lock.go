package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 30 * time.Second

// ErrNotAcquired is returned when another owner already holds the lock.
var ErrNotAcquired = errors.New("lock held by another owner")

// Lock coordinates exclusive access to one resource.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}

// KeyedLocker hands out one lock per resource key.
type KeyedLocker interface {
	// Lock acquires the lock for key or returns ErrNotAcquired. The returned
	// func releases it.
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

type keyStore interface {
	redisStore
	LockKey(parts ...string) string
}

// RedisKeyedLocker scopes RedisLock instances under a namespace.
type RedisKeyedLocker struct {
	store     keyStore
	namespace string
	ttl       time.Duration
}

// NewRedisKeyedLocker builds a keyed locker; a nil store yields a no-op locker.
func NewRedisKeyedLocker(store keyStore, namespace string, ttl time.Duration) KeyedLocker {
	if store == nil {
		return NoopLocker{}
	}
	return &RedisKeyedLocker{store: store, namespace: namespace, ttl: ttl}
}

func (k *RedisKeyedLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := NewRedisLock(k.store, k.store.LockKey(k.namespace, key), k.ttl)
	if err != nil {
		return nil, err
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return lock.Release, nil
}

// NoopLocker always succeeds; row locks in the database remain the only guard.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
