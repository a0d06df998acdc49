package lock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "booking:lock:"

	// releaseScript deletes the lock only when the caller still owns it, so
	// a lease that expired and was re-acquired by another booking is never
	// released by the first owner.
	releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

	releaseScriptName = "lock_release"
)

// ErrNotAcquired is returned when the lock is held by someone else for the
// whole wait window
var ErrNotAcquired = fmt.Errorf("lock not acquired within wait timeout")

// RedisClient is the subset of the redis wrapper the lock needs
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	EvalWithFallback(ctx context.Context, name, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Manager acquires lease-based distributed locks in Redis
type Manager struct {
	redis        RedisClient
	pollInterval time.Duration
}

// NewManager creates a lock manager. pollInterval controls how often a
// blocked acquirer re-attempts SETNX.
func NewManager(rdb RedisClient, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Manager{redis: rdb, pollInterval: pollInterval}
}

// Lock is an acquired lock handle. Release is idempotent and only removes
// the key while this handle still owns it.
type Lock struct {
	manager *Manager
	key     string
	token   string
}

// Key returns the Redis key the lock holds
func (l *Lock) Key() string {
	return l.key
}

// SeatLockKey builds the lock key for a seat set of a show. Seats are sorted
// so two requests for the same seats in different order contend on one key.
func SeatLockKey(showID string, seats []string) string {
	sorted := make([]string, len(seats))
	copy(sorted, seats)
	sort.Strings(sorted)
	return fmt.Sprintf("%sshow:%s:seats:%s", lockKeyPrefix, showID, strings.Join(sorted, ","))
}

// Acquire tries to take the lock, polling until waitTimeout elapses or ctx is
// done. The lock auto-expires after leaseTime if never released.
func (m *Manager) Acquire(ctx context.Context, key string, waitTimeout, leaseTime time.Duration) (*Lock, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(waitTimeout)

	for {
		ok, err := m.redis.SetNX(ctx, key, token, leaseTime).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire %s: %w", key, err)
		}
		if ok {
			return &Lock{manager: m, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// Release removes the lock if this handle still owns it. Releasing an
// expired or stolen lock is a no-op, not an error.
func (l *Lock) Release(ctx context.Context) error {
	cmd := l.manager.redis.EvalWithFallback(ctx, releaseScriptName, releaseScript,
		[]string{l.key}, l.token)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("lock release %s: %w", l.key, err)
	}
	return nil
}
