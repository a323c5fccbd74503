package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript is the compare-and-delete Lua script: only remove the key
// if its current value equals the caller's lease token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisCache is the production PlacesCache backed by go-redis/v9.
type RedisCache struct {
	client  *redis.Client
	log     *logrus.Entry
	release *redis.Script
}

// RedisConfig holds the subset of connection tuning the cache cares about.
type RedisConfig struct {
	URL             string
	Password        string
	DB              int
	PoolSize        int
	MinIdleConns    int
	ConnMaxIdleTime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// NewRedisCache parses cfg.URL and constructs a pooled client.
func NewRedisCache(cfg RedisConfig, log *logrus.Entry) (*RedisCache, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cache: redis URL cannot be empty")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to parse redis URL: %w", err)
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = orDefault(cfg.PoolSize, 20)
	opt.MinIdleConns = orDefault(cfg.MinIdleConns, 5)
	opt.ConnMaxIdleTime = orDefaultDuration(cfg.ConnMaxIdleTime, 30*time.Minute)
	opt.DialTimeout = orDefaultDuration(cfg.DialTimeout, 10*time.Second)
	opt.ReadTimeout = orDefaultDuration(cfg.ReadTimeout, 3*time.Second)
	opt.WriteTimeout = orDefaultDuration(cfg.WriteTimeout, 3*time.Second)

	client := redis.NewClient(opt)

	return &RedisCache{
		client:  client,
		log:     log,
		release: redis.NewScript(releaseScript),
	}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Ping verifies the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if _, err := c.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get implements PlacesCache.Get.
func (c *RedisCache) Get(ctx context.Context, key string) ([]Place, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, &TransientError{Op: "get", Err: err}
	}

	var places []Place
	if err := json.Unmarshal(raw, &places); err != nil {
		c.log.WithField("key", key).WithError(err).Warn("corrupted cache value, leaving poisoned entry in place")
		return nil, ErrCorrupted
	}
	return places, nil
}

// Set implements PlacesCache.Set.
func (c *RedisCache) Set(ctx context.Context, key string, places []Place, ttl time.Duration) error {
	raw, err := json.Marshal(places)
	if err != nil {
		return fmt.Errorf("cache: encode places: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return &TransientError{Op: "set", Err: err}
	}
	return nil
}

// AcquireLock implements PlacesCache.AcquireLock via SET NX EX.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", &TransientError{Op: "acquire_lock", Err: err}
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseLock implements PlacesCache.ReleaseLock via the compare-and-delete
// Lua script, falling back to a read-then-delete if script execution fails.
func (c *RedisCache) ReleaseLock(ctx context.Context, key, leaseToken string) error {
	_, err := c.release.Run(ctx, c.client, []string{lockKey(key)}, leaseToken).Result()
	if err == nil {
		return nil
	}

	c.log.WithField("key", key).WithError(err).Warn("release script failed, falling back to read-then-delete")

	current, getErr := c.client.Get(ctx, lockKey(key)).Result()
	if getErr == redis.Nil {
		return nil
	}
	if getErr != nil {
		return &TransientError{Op: "release_lock", Err: getErr}
	}
	if current != leaseToken {
		return nil
	}
	if delErr := c.client.Del(ctx, lockKey(key)).Err(); delErr != nil {
		return &TransientError{Op: "release_lock", Err: delErr}
	}
	return nil
}
