package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares throttle windows between API instances. Each key is a plain
// string with a millisecond TTL; its remaining PTTL is the wait.
type Redis struct {
	client   redis.UniversalClient
	prefix   string
	interval time.Duration
}

var _ Throttle = (*Redis)(nil)

// NewRedis namespaces keys as "<prefix>:<email>".
func NewRedis(client redis.UniversalClient, prefix string, interval time.Duration) *Redis {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Redis{client: client, prefix: prefix, interval: interval}
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + NormalizeKey(k)
}

func (r *Redis) Wait(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("throttle: reading ttl: %w", err)
	}
	// -1 (no expiry) and -2 (missing) both mean no active window.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *Redis) Touch(ctx context.Context, key string) error {
	if err := r.client.Set(ctx, r.key(key), time.Now().UnixMilli(), r.interval).Err(); err != nil {
		return fmt.Errorf("throttle: setting window: %w", err)
	}
	return nil
}
