package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/pkg/logger"
)

// DefaultCacheTTL is how long a terminal job projection stays cached.
const DefaultCacheTTL = 30 * time.Minute

// Cache holds JSON projections of terminal jobs: L1 in memory, L2 in Redis
// when configured. Only terminal jobs are cached since they no longer change.
type Cache struct {
	l1     sync.Map // key -> *cacheEntry
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewCache creates the cache. An empty or unreachable redisURL leaves L2 disabled.
func NewCache(redisURL string, ttl time.Duration, l *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{ttl: ttl, logger: logger.OrDefault(l).With("component", "job_cache"), stop: make(chan struct{})}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			c.logger.Warn("invalid redis URL, L2 disabled", "error", err)
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				c.logger.Warn("redis unreachable, L2 disabled", "error", err)
				_ = rdb.Close()
			} else {
				c.rdb = rdb
				c.logger.Info("L2 redis connected", "addr", opts.Addr)
			}
		}
	}

	go c.cleanupLoop()
	return c
}

// HasL2 reports whether Redis is in use.
func (c *Cache) HasL2() bool {
	return c.rdb != nil
}

func cacheKey(id string) string {
	return "job:" + id
}

// Get returns the cached job, trying L1 then L2.
func (c *Cache) Get(ctx context.Context, id string) (*models.Job, bool) {
	key := cacheKey(id)
	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			if job, ok := decodeJob(entry.data); ok {
				return job, true
			}
		}
		c.l1.Delete(key)
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			if job, ok := decodeJob(data); ok {
				c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
				return job, true
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Debug("L2 get failed", "key", key, "error", err)
		}
	}
	return nil, false
}

// Set caches job if it is terminal.
func (c *Cache) Set(ctx context.Context, job *models.Job) {
	if job == nil || !job.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	key := cacheKey(job.ID)
	c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("L2 set failed", "key", key, "error", err)
		}
	}
}

// Delete removes the job from both tiers.
func (c *Cache) Delete(ctx context.Context, id string) {
	key := cacheKey(id)
	c.l1.Delete(key)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.Debug("L2 delete failed", "key", key, "error", err)
		}
	}
}

// Close stops the cleanup loop and closes the Redis client.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.l1.Range(func(key, val any) bool {
				if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
					c.l1.Delete(key)
				}
				return true
			})
		}
	}
}

func decodeJob(data []byte) (*models.Job, bool) {
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false
	}
	return &job, true
}
