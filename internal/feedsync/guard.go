package feedsync

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"leaguewatch/internal/feed"
)

// Guard prevents two overlapping syncs of the same (league, feed type).
// TryAcquire never blocks waiting for the holder; ok=false means busy.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

func guardKey(leagueID string, t feed.Type) string {
	return leagueID + ":" + string(t)
}

// LocalGuard is an in-process skip-if-running guard.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: map[string]struct{}{}}
}

func (g *LocalGuard) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the guard across processes. A lock expires after ttl
// so a crashed holder cannot wedge a league forever.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = "leaguewatch:sync:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	full := g.prefix + key
	ok, err := g.client.SetNX(ctx, full, token, g.ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis SETNX %s", full)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, g.client, []string{full}, token).Err()
		})
	}, true, nil
}
