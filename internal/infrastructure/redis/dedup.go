package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationDedup suppresses redelivered gateway notifications. The remote
// gateway retries delivery until acked, so the same notification id can
// arrive more than once.
type NotificationDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewNotificationDedup(client *redis.Client, ttl time.Duration) *NotificationDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NotificationDedup{client: client, ttl: ttl}
}

// FirstDelivery records the notification id and reports whether this is the
// first time it has been seen.
func (d *NotificationDedup) FirstDelivery(ctx context.Context, notificationID string) (bool, error) {
	key := fmt.Sprintf("notification:%s", notificationID)
	first, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("notification dedup: %w", err)
	}
	return first, nil
}
