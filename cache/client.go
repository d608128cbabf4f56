package cache

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/rowquery/logger"
	"github.com/kbukum/rowquery/observability"
)

// Client wraps a go-redis client.
type Client struct {
	rdb    *goredis.Client
	log    *logger.Logger
	cfg    Config
	mu     sync.Mutex
	closed bool
}

// New creates a client. No connection is made until the first command.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("cache is disabled")
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("cache")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  parseDuration(cfg.DialTimeout),
		ReadTimeout:  parseDuration(cfg.ReadTimeout),
		WriteTimeout: parseDuration(cfg.WriteTimeout),
	})

	log.Info("redis client created", map[string]interface{}{
		"addr":      cfg.Addr,
		"db":        cfg.DB,
		"pool_size": cfg.PoolSize,
		"ttl_s":     cfg.TTL,
	})
	return &Client{rdb: rdb, log: log, cfg: cfg}, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", pong)
	}
	return nil
}

// Health reports the connection state for GET /health.
func (c *Client) Health() observability.HealthChecker {
	return observability.CheckerFunc(func(ctx context.Context) observability.Health {
		h := observability.Health{Name: "redis", Details: map[string]string{"addr": c.cfg.Addr}}
		if err := c.Ping(ctx); err != nil {
			// The cache is optional; queries still work without it.
			h.Status = observability.HealthStatusDegraded
			h.Message = err.Error()
			return h
		}
		h.Status = observability.HealthStatusUp
		return h
	})
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.log.Info("closing redis connection")
	return c.rdb.Close()
}
