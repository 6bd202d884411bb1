package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tickLockKey = "leadsync:tick:lock"

// Locker serializes ticks across processes. TryLock reports false when
// another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context), ok bool, err error)
}

// releaseScript deletes the key only if it still carries our token, so an
// expired holder cannot release a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript renews the expiry only while the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a SET NX PX lock. While held it is renewed every third of its
// ttl, so a long tick keeps it and a crashed holder blocks others for at most ttl.
type RedisLock struct {
	client  redis.UniversalClient
	key     string
	ttl     time.Duration
	refresh time.Duration
}

// NewRedisLock builds the tick lock.
func NewRedisLock(client redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	refresh := ttl / 3
	if refresh <= 0 {
		refresh = ttl
	}
	return &RedisLock{client: client, key: tickLockKey, ttl: ttl, refresh: refresh}
}

// TryLock attempts to take the lock without waiting.
func (l *RedisLock) TryLock(ctx context.Context) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	watchCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(watchCtx, token)
	}()

	unlock := func(ctx context.Context) {
		stop()
		<-done
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return unlock, true, nil
}

// keepAlive renews the lock until ctx ends or the token no longer owns the key.
func (l *RedisLock) keepAlive(ctx context.Context, token string) {
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				// Retried on the next tick while the ttl lasts.
				continue
			}
			if renewed == 0 {
				return
			}
		}
	}
}
