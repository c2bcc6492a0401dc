// Package lock provides advisory locks keyed by string, used to keep a single
// scheduling batch in flight per semester.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when the key is already held by another owner.
var ErrLocked = errors.New("lock already held")

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker acquires advisory locks.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// New returns a Redis-backed locker when a client is available and an in-process one otherwise.
func New(client *redis.Client, prefix string) Locker {
	if client == nil {
		return NewLocal()
	}
	return NewRedis(client, prefix)
}

// --- Redis ---

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis locker.
func NewRedis(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire takes the lock or returns ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLease{client: l.client, key: fullKey, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	once   sync.Once
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		if runErr := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); runErr != nil && !errors.Is(runErr, redis.Nil) {
			err = fmt.Errorf("redis release %s: %w", l.key, runErr)
		}
	})
	return err
}

// --- In-process ---

// LocalLocker is an in-memory locker for single-instance deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocal constructs an in-process locker.
func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), now: time.Now}
}

// Acquire takes the lock unless a live lease exists for key.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if entry, ok := l.held[key]; ok && (entry.expires.IsZero() || now.Before(entry.expires)) {
		return nil, ErrLocked
	}
	entry := localEntry{token: uuid.NewString()}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	l.held[key] = entry
	return &localLease{owner: l, key: key, token: entry.token}, nil
}

type localLease struct {
	owner *LocalLocker
	key   string
	token string
	once  sync.Once
}

func (l *localLease) Key() string { return l.key }

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		defer l.owner.mu.Unlock()
		if entry, ok := l.owner.held[l.key]; ok && entry.token == l.token {
			delete(l.owner.held, l.key)
		}
	})
	return nil
}
