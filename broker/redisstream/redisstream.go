// Package redisstream provides a Redis Streams broker backend. Streams map
// to Redis streams, groups to consumer groups created at the tail, and
// acknowledgement to XACK.
package redisstream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drblury/streamflow/broker"
)

// BackendName is the name used to register this backend.
const BackendName = "redis"

func init() {
	broker.RegisterWithCapabilities(BackendName, Build, broker.RedisStreamCapabilities)
}

// Build creates a new Redis Streams client from the shared configuration
// and verifies connectivity within the connect timeout.
func Build(ctx context.Context, cfg broker.Config, logger broker.Logger) (broker.Client, error) {
	config := Config{
		Addr:           cfg.GetRedisAddr(),
		Password:       cfg.GetRedisPassword(),
		DB:             cfg.GetRedisDB(),
		ConnectTimeout: cfg.GetConnectTimeout(),
		OpTimeout:      cfg.GetOpTimeout(),
	}
	return New(ctx, config, logger)
}

// Config holds Redis-specific configuration.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string

	Password string
	DB       int

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// OpTimeout bounds every non-blocking call. Blocking group reads are
	// bounded by their block duration plus this slack.
	OpTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}

// Client implements broker.Client on top of Redis Streams.
type Client struct {
	rdb       *redis.Client
	opTimeout time.Duration
	logger    broker.Logger
}

// New connects to Redis and pings it so broker outages surface at startup
// rather than on the first append.
func New(ctx context.Context, cfg Config, logger broker.Logger) (*Client, error) {
	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	c := &Client{rdb: rdb, opTimeout: cfg.OpTimeout, logger: logger}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &broker.UnavailableError{Op: "connect", Err: err}
	}
	return c, nil
}

// Append runs XADD and returns the generated entry id.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()

	id, err := c.rdb.XAdd(opCtx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", &broker.UnavailableError{Op: "append", Stream: stream, Err: err}
	}
	return id, nil
}

// EnsureGroup runs XGROUP CREATE MKSTREAM at the tail ($). BUSYGROUP means
// the group already exists and is treated as success.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	opCtx, cancel := c.bound(ctx)
	defer cancel()

	err := c.rdb.XGroupCreateMkStream(opCtx, stream, group, "$").Err()
	if err == nil {
		c.logger.Info("consumer group created", map[string]any{"stream": stream, "group": group})
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		c.logger.Debug("consumer group exists", map[string]any{"stream": stream, "group": group})
		return nil
	}
	return &broker.UnavailableError{Op: "ensure_group", Stream: stream, Err: err}
}

// ReadGroup runs XREADGROUP > with COUNT and BLOCK. A blocked read that
// times out with no entries returns an empty slice.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]broker.Entry, error) {
	if count <= 0 {
		count = 1
	}

	// The read deadline must outlive the server-side block.
	opCtx, cancel := context.WithTimeout(ctx, block+c.opTimeout)
	defer cancel()

	streams, err := c.rdb.XReadGroup(opCtx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &broker.UnavailableError{Op: "read_group", Stream: stream, Err: err}
	}

	var entries []broker.Entry
	for _, xs := range streams {
		for _, msg := range xs.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
			entries = append(entries, broker.Entry{ID: msg.ID, Fields: fields})
		}
	}
	return entries, nil
}

// Ack runs XACK. Redis treats unknown ids as a zero-count success, which
// matches the idempotent ack contract.
func (c *Client) Ack(ctx context.Context, stream, group, id string) error {
	opCtx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.XAck(opCtx, stream, group, id).Err(); err != nil {
		return &broker.UnavailableError{Op: "ack", Stream: stream, Err: err}
	}
	return nil
}

// Ping reports broker reachability.
func (c *Client) Ping(ctx context.Context) error {
	opCtx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.Ping(opCtx).Err(); err != nil {
		return &broker.UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}
