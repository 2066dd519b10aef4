package redis

import (
	"context"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/redis/go-redis/v9"
)

// LockManager hands out per-order locks with a shared TTL.
type LockManager struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLockManager(client *redis.Client, ttl time.Duration) *LockManager {
	return &LockManager{client: client, ttl: ttl}
}

// WithOrderLock runs fn while holding the order's lock. Lock contention is a
// hard failure; the caller retries, it does not queue.
func (m *LockManager) WithOrderLock(ctx context.Context, orderID string, fn func() error) error {
	lock := NewOrderLock(m.client, orderID, m.ttl)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return domainErrors.ErrLockAcquisitionFailed
	}
	defer lock.Release(ctx)

	return fn()
}
