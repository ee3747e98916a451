package directory

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached is a read-through Redis cache in front of another Directory,
// shared by every server instance.
type Cached struct {
	next Directory
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCached caches lookups of next for ttl
func NewCached(next Directory, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

func (c *Cached) lookup(ctx context.Context, key string, load func() (string, error)) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, redis.Nil) {
		// cache unavailable, go straight to the source
		return load()
	}

	v, err = load()
	if err != nil {
		return "", err
	}
	_ = c.rdb.Set(ctx, key, v, c.ttl).Err()
	return v, nil
}

func (c *Cached) UserName(ctx context.Context, userID string) (string, error) {
	return c.lookup(ctx, "directory:name:"+userID, func() (string, error) {
		return c.next.UserName(ctx, userID)
	})
}

func (c *Cached) ProfilePic(ctx context.Context, userID string) (string, error) {
	return c.lookup(ctx, "directory:avatar:"+userID, func() (string, error) {
		return c.next.ProfilePic(ctx, userID)
	})
}
