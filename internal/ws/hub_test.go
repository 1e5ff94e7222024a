package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/pkg/redis"
	"github.com/Gopher0727/MindBridge/utils/consistenthash"
)

// startHub runs hub and serves it over httptest; the user comes from ?user=.
func startHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.done
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Online(userID) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return &f
}

func newRedis(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	c := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHub_LocalDelivery(t *testing.T) {
	hub := NewHub(nil, nil, "node-1", nil)
	srv := startHub(t, hub)
	first := dial(t, srv, hub, "u1")
	second := dial(t, srv, hub, "u1")

	event := model.NewEvent(model.EventJoinApproved, "admin", "c1", map[string]string{"user_id": "u1"}, "u1")
	require.NoError(t, hub.Notify(context.Background(), "u1", event))

	for _, conn := range []*websocket.Conn{first, second} {
		f := readFrame(t, conn)
		assert.Equal(t, model.EventJoinApproved, f.Type)
		assert.Equal(t, "c1", f.CircleID)
		assert.JSONEq(t, `{"user_id":"u1"}`, string(f.Payload))
	}
}

func TestHub_OfflineUserIsNotAnError(t *testing.T) {
	hub := NewHub(nil, nil, "node-1", nil)
	startHub(t, hub)
	assert.NoError(t, hub.Notify(context.Background(), "nobody", model.NewEvent(model.EventDirectMessage, "u1", "", nil, "nobody")))
}

func TestHub_DisconnectClearsPresence(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := newRedis(t, mr)
	hub := NewHub(rdb, nil, "node-1", nil)
	srv := startHub(t, hub)
	conn := dial(t, srv, hub, "u1")

	node, err := rdb.OnlineNode(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "node-1", node)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.Online("u1") }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		node, err := rdb.OnlineNode(context.Background(), "u1")
		return err == nil && node == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CrossNodeDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	ring := consistenthash.New(50, nil)
	ring.Add("node-1", "node-2")

	rdb := newRedis(t, mr)
	hub1 := NewHub(rdb, ring, "node-1", nil)
	hub2 := NewHub(newRedis(t, mr), ring, "node-2", nil)
	startHub(t, hub1)
	srv2 := startHub(t, hub2)

	conn := dial(t, srv2, hub2, "u7")
	require.Eventually(t, func() bool {
		node, err := rdb.OnlineNode(context.Background(), "u7")
		return err == nil && node == "node-2"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(mr.PubSubChannels("notify:*")) == 2 }, 2*time.Second, 10*time.Millisecond)

	event := model.NewEvent(model.EventDirectMessage, "u3", "", map[string]string{"content": "hi"}, "u7")
	require.NoError(t, hub1.Notify(context.Background(), "u7", event))

	f := readFrame(t, conn)
	assert.Equal(t, model.EventDirectMessage, f.Type)
	assert.Equal(t, "u3", f.ActorID)
}

func TestHub_RouteFallsBackToRing(t *testing.T) {
	ring := consistenthash.New(50, nil)
	ring.Add("node-1", "node-2", "node-3")
	mr := miniredis.RunT(t)
	hub := NewHub(newRedis(t, mr), ring, "node-1", nil)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		assert.Equal(t, ring.Get(user), hub.route(ctx, user), user)
	}

	require.NoError(t, hub.redis.SetOnline(ctx, "u1", "node-9", time.Minute))
	assert.Equal(t, "node-9", hub.route(ctx, "u1"))

	assert.Equal(t, "node-1", NewHub(nil, nil, "node-1", nil).route(ctx, "u1"))
}

func TestHub_NotifyAfterShutdown(t *testing.T) {
	hub := NewHub(nil, nil, "node-1", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.done

	err := hub.Notify(context.Background(), "u1", model.NewEvent(model.EventDirectMessage, "u2", "", nil))
	assert.ErrorIs(t, err, ErrHubClosed)
}
