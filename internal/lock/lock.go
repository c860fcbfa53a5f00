// Package lock guards the pipeline so only one run is in flight.
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

// ErrHeld means another run holds the lock.
var ErrHeld = errors.New("a signal run is already in progress")

// Locker hands out a release func on success and ErrHeld when busy.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Local is an in-process lock.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// RedisClient is the part of go-redis the lock needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only if it still holds our token, so a run
// that outlived its TTL cannot free a newer run's lock.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Redis is a lock shared by every process pointing at the same server. The
// TTL bounds how long a crashed holder blocks others.
type Redis struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

func NewRedis(client RedisClient, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.client.Eval(ctx, releaseScript, []string{r.key}, token).Err()
		})
	}, nil
}
