package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Gopher0727/MindBridge/config"
)

// Nil is returned by lookups of missing keys.
var Nil = redis.Nil

// Client wraps go-redis with the presence and notification helpers the
// realtime gateway needs.
type Client struct {
	client *redis.Client
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Client{client: rdb}, nil
}

// Wrap adapts an existing go-redis client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{client: rdb}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetClient() *redis.Client {
	return c.client
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// NotifyChannel is the pub/sub channel a gateway node listens on.
func NotifyChannel(nodeID string) string {
	return "notify:" + nodeID
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// SetOnline records that userID has a live connection on nodeID for ttl.
// Callers refresh it while the connection stays up.
func (c *Client) SetOnline(ctx context.Context, userID, nodeID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, presenceKey(userID), nodeID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user %s online: %w", userID, err)
	}
	return nil
}

// OnlineNode returns the node holding userID's connection, or "" when the
// user is offline.
func (c *Client) OnlineNode(ctx context.Context, userID string) (string, error) {
	node, err := c.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read presence of user %s: %w", userID, err)
	}
	return node, nil
}

// 仅当在线记录仍属于本节点时才删除，避免覆盖用户在其他节点上的新连接
var clearPresence = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SetOffline clears userID's presence if nodeID still owns it.
func (c *Client) SetOffline(ctx context.Context, userID, nodeID string) (bool, error) {
	n, err := clearPresence.Run(ctx, c.client, []string{presenceKey(userID)}, nodeID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to set user %s offline: %w", userID, err)
	}
	return n == 1, nil
}

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once the server has confirmed the subscription.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	pubsub := c.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channels: %w", err)
	}
	return pubsub, nil
}
