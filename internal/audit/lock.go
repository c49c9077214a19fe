package audit

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ErrLocked is returned by a Locker when another worker holds the lock.
var ErrLocked = eris.New("audit: run locked by another worker")

// Locker guards a run against concurrent processing by overlapping
// scheduler ticks or replicas.
type Locker interface {
	// Obtain acquires key or returns ErrLocked. The returned func releases it.
	Obtain(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// NoopLocker always succeeds. Used when no redis is configured.
type NoopLocker struct{}

func (NoopLocker) Obtain(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// RedisLocker implements Locker with bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
	rdb    *redis.Client
	ttl    time.Duration
}

// NewRedisLocker connects to redisURL and returns a locker whose locks
// expire after ttl.
func NewRedisLocker(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "audit: parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "audit: ping redis")
	}
	return &RedisLocker{client: redislock.New(rdb), rdb: rdb, ttl: ttl}, nil
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, "citation:lock:"+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, eris.Wrapf(err, "audit: obtain lock %s", key)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}

// Close closes the redis connection.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
