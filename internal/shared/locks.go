package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker holds the critical section.
var ErrLockHeld = errors.New("lock already held")

// ReleaseLockKey builds redis keys for BAS release critical sections.
func ReleaseLockKey(orgID string) string {
	return fmt.Sprintf("lodgment:org:%s:release", orgID)
}

// ReleaseLock serializes fund releases per organisation across processes.
type ReleaseLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReleaseLock constructs a ReleaseLock with the given hold TTL.
func NewReleaseLock(client *redis.Client, ttl time.Duration) *ReleaseLock {
	return &ReleaseLock{client: client, ttl: ttl}
}

// Acquire takes the per-org lock or fails with ErrLockHeld.
func (l *ReleaseLock) Acquire(ctx context.Context, orgID string) error {
	if l == nil || l.client == nil {
		return errors.New("release lock not initialised")
	}
	ok, err := l.client.SetNX(ctx, ReleaseLockKey(orgID), "1", l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release drops the per-org lock.
func (l *ReleaseLock) Release(ctx context.Context, orgID string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, ReleaseLockKey(orgID)).Err()
}
