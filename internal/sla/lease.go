package sla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease serializes sweep runs across service replicas. Only the holder of
// the lease sweeps; everyone else skips the tick.
type Lease interface {
	// TryAcquire attempts to take the lease for ttl. Returns false without
	// error when another holder has it.
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)

	// Release gives the lease up early. Releasing a lease held by someone
	// else is a no-op.
	Release(ctx context.Context) error
}

// --- MemoryLease ---

// MemoryLease is an in-process Lease. Suitable for testing and
// single-instance deployments.
type MemoryLease struct {
	mu      sync.Mutex
	held    bool
	expires time.Time
}

// NewMemoryLease creates a new in-process lease.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{}
}

// TryAcquire takes the lease if it is free or expired.
func (l *MemoryLease) TryAcquire(_ context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.held && now.Before(l.expires) {
		return false, nil
	}
	l.held = true
	l.expires = now.Add(ttl)
	return true, nil
}

// Release frees the lease.
func (l *MemoryLease) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

// --- RedisLease ---

// releaseScript deletes the lease key only when this process still owns it,
// so an expired-and-reacquired lease is never released by the old holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLease is a Redis-backed Lease shared across replicas.
type RedisLease struct {
	client redis.Cmdable
	key    string
	token  string
}

// NewRedisLease creates a Redis-backed lease on the given key.
func NewRedisLease(client redis.Cmdable, key string) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		token:  uuid.NewString(),
	}
}

// TryAcquire takes the lease via SETNX with a TTL.
func (l *RedisLease) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", l.key, err)
	}
	return ok, nil
}

// Release frees the lease if this process still owns it.
func (l *RedisLease) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis release %q: %w", l.key, err)
	}
	return nil
}
