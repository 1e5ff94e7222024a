package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/MindBridge/config"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	c, err := NewClient(&config.RedisConfig{Host: mr.Host(), Port: port, PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	mr.Close()
	_, err = NewClient(&config.RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}

func TestPresence(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	node, err := c.OnlineNode(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, node)

	require.NoError(t, c.SetOnline(ctx, "u1", "node-1", 30*time.Second))
	node, err = c.OnlineNode(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "node-1", node)

	// 用户重连到另一个节点后，旧节点的下线不应清除新记录
	require.NoError(t, c.SetOnline(ctx, "u1", "node-2", 30*time.Second))
	cleared, err := c.SetOffline(ctx, "u1", "node-1")
	require.NoError(t, err)
	assert.False(t, cleared)
	node, _ = c.OnlineNode(ctx, "u1")
	assert.Equal(t, "node-2", node)

	cleared, err = c.SetOffline(ctx, "u1", "node-2")
	require.NoError(t, err)
	assert.True(t, cleared)
	node, _ = c.OnlineNode(ctx, "u1")
	assert.Empty(t, node)

	require.NoError(t, c.SetOnline(ctx, "u2", "node-1", 10*time.Second))
	mr.FastForward(11 * time.Second)
	node, _ = c.OnlineNode(ctx, "u2")
	assert.Empty(t, node)
}

func TestPublishSubscribe(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := c.Subscribe(ctx, NotifyChannel("node-1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, c.Publish(ctx, NotifyChannel("node-1"), []byte(`{"user_id":"u1"}`)))
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "notify:node-1", msg.Channel)
	assert.JSONEq(t, `{"user_id":"u1"}`, msg.Payload)
}

func TestPresenceProperty(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("the last node to register owns the presence until it expires", prop.ForAll(
		func(userID string, first, second string, ttlSeconds int) bool {
			ttl := time.Duration(ttlSeconds) * time.Second
			if c.SetOnline(ctx, userID, first, ttl) != nil || c.SetOnline(ctx, userID, second, ttl) != nil {
				return false
			}
			if node, err := c.OnlineNode(ctx, userID); err != nil || node != second {
				return false
			}
			if got := mr.TTL(presenceKey(userID)); got <= 0 || got > ttl {
				return false
			}
			mr.FastForward(ttl)
			node, err := c.OnlineNode(ctx, userID)
			return err == nil && node == ""
		},
		gen.Identifier(),
		gen.OneConstOf("node-1", "node-2", "node-3"),
		gen.OneConstOf("node-1", "node-2", "node-3"),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}
