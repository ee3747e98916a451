package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
)

// Limit is a request budget per user over a window
type Limit struct {
	Max    int
	Window time.Duration
}

// Budgets for the chat endpoints
var (
	SendLimit   = Limit{Max: 60, Window: time.Minute}     // messages and new conversations
	ReadLimit   = Limit{Max: 100, Window: time.Minute}    // inbox and history reads
	UploadLimit = Limit{Max: 10, Window: 5 * time.Minute} // attachments
)

// Limiters hands out the chat rate limiters. With a shared storage the
// counters hold across every server instance; with nil they are per process.
type Limiters struct {
	storage fiber.Storage
}

func NewLimiters(storage fiber.Storage) *Limiters {
	return &Limiters{storage: storage}
}

// Sends limits message sends and conversation starts
func (l *Limiters) Sends() fiber.Handler { return l.limit("send", SendLimit) }

// Reads limits inbox and message history reads
func (l *Limiters) Reads() fiber.Handler { return l.limit("read", ReadLimit) }

// Uploads limits attachment sends
func (l *Limiters) Uploads() fiber.Handler { return l.limit("upload", UploadLimit) }

func (l *Limiters) limit(group string, lim Limit) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        lim.Max,
		Expiration: lim.Window,
		Storage:    l.storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Use user ID if authenticated, otherwise use IP
			if userID := GetUserID(c); userID != "" {
				return group + ":" + userID
			}
			return group + ":ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests, please try again later",
				"code":    "RATE_LIMITED",
			})
		},
	})
}

// RedisStorage keeps limiter counters in redis so every instance shares them
type RedisStorage struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStorage(rdb *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{rdb: rdb, prefix: prefix}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + ":ratelimit:" + k
}

// Get returns nil without error for a missing key
func (s *RedisStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.rdb.Get(context.Background(), s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val; a zero exp keeps it until deleted
func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.rdb.Set(context.Background(), s.key(key), val, exp).Err()
}

func (s *RedisStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.rdb.Del(context.Background(), s.key(key)).Err()
}

// Reset removes every counter under the prefix
func (s *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := s.rdb.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client belongs to the caller
func (s *RedisStorage) Close() error { return nil }
