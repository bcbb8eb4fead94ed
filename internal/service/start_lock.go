package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// StartLocker serializes attempt starts for one learner and exam across server replicas.
type StartLocker interface {
	// Acquire returns ok=false when another start holds the key. release is nil in that case.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

func startLockKey(examID, userID uint) string {
	return fmt.Sprintf("exam:start:%d:%d", examID, userID)
}

// RedisStartLocker uses SETNX with a TTL so a crashed holder never blocks the learner for long.
type RedisStartLocker struct {
	Client *redis.Client
}

func NewRedisStartLocker(rdb *redis.Client) *RedisStartLocker {
	return &RedisStartLocker{Client: rdb}
}

// 仅删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisStartLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		// the request context may already be cancelled
		releaseScript.Run(context.Background(), l.Client, []string{key}, token)
	}
	return release, true, nil
}

// LocalStartLocker is the single-process fallback used when Redis is not configured.
type LocalStartLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocalStartLocker() *LocalStartLocker {
	return &LocalStartLocker{held: make(map[string]time.Time)}
}

func (l *LocalStartLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	l.held[key] = now.Add(ttl)
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}
