package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnreachable is returned alongside a usable client when the initial ping
// fails. Permission caches degrade to the database in that case.
var ErrUnreachable = errors.New("platform/cache: redis unreachable")

// Connect creates a Redis client and pings it within timeout. On ping failure
// the client is still returned together with an error wrapping ErrUnreachable.
func Connect(ctx context.Context, addr string, timeout time.Duration) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("platform/cache: redis address required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return client, nil
}
