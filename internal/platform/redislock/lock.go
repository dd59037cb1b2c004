package redislock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// ErrNotAcquired is returned when another process already holds the lock.
var ErrNotAcquired = fmt.Errorf("redislock: lock held by another owner")

// releaseScript deletes the key only if this process still owns it, so a
// lock that expired and was re-acquired elsewhere is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// extendScript refreshes the TTL only while this process still owns the
// key; a stolen lock is never re-extended.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// Locker serializes merge writers across processes. Pair comparison is
// read-only and runs anywhere; only the write phase takes the lock.
type Locker struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewFromEnv returns (nil, nil) when REDIS_ADDR is unset; callers fall back
// to the in-process mutex in that case.
func NewFromEnv(log *logger.Logger) (*Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("redislock: logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redislock: redis ping: %w", err)
	}

	return &Locker{
		log: log.With("client", "RedisLock"),
		rdb: rdb,
		ttl: 30 * time.Second,
	}, nil
}

// Handle identifies one held lock; Release is a no-op for expired handles.
// A heartbeat goroutine keeps the TTL refreshed while the lock is held, so
// a write phase longer than the TTL does not silently lose the lock.
type Handle struct {
	key   string
	owner string
	ttl   time.Duration
	rdb   *goredis.Client
	stop  chan struct{}
	done  chan struct{}
}

// Acquire takes the named lock or returns ErrNotAcquired immediately.
func (l *Locker) Acquire(ctx context.Context, name string) (*Handle, error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("redislock: locker not initialized")
	}
	key := "lock:" + name
	owner := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redislock: setnx %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	h := &Handle{
		key:   key,
		owner: owner,
		ttl:   l.ttl,
		rdb:   l.rdb,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go h.heartbeat(l.log)
	return h, nil
}

func (h *Handle) heartbeat(log *logger.Logger) {
	defer close(h.done)
	ticker := time.NewTicker(h.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.ttl/3)
			err := h.rdb.Eval(ctx, extendScript, []string{h.key}, h.owner, h.ttl.Milliseconds()).Err()
			cancel()
			if err != nil && log != nil {
				log.Warn("lock ttl extend failed", "key", h.key, "err", err)
			}
		}
	}
}

// AcquireWait polls for the lock until the context is done.
func (l *Locker) AcquireWait(ctx context.Context, name string) (*Handle, error) {
	for {
		h, err := l.Acquire(ctx, name)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.rdb == nil {
		return nil
	}
	close(h.stop)
	<-h.done
	return h.rdb.Eval(ctx, releaseScript, []string{h.key}, h.owner).Err()
}

func (l *Locker) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
