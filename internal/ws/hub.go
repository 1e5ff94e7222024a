// Package ws pushes live notifications to users over WebSocket. A user's
// connections may live on any gateway node; notifications for users on other
// nodes travel over Redis pub/sub to the node that holds them.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/pkg/redis"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
	"github.com/Gopher0727/MindBridge/utils/consistenthash"
)

var ErrHubClosed = errors.New("notification hub is closed")

// Frame is what a connected client receives.
type Frame struct {
	Type       model.EventType `json:"type"`
	ActorID    string          `json:"actor_id,omitempty"`
	CircleID   string          `json:"circle_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func frameOf(e *model.Event) *Frame {
	return &Frame{
		Type:       e.Type,
		ActorID:    e.ActorID,
		CircleID:   e.CircleID,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	}
}

// delivery is also the pub/sub wire format between nodes.
type delivery struct {
	UserID string `json:"user_id"`
	Frame  *Frame `json:"frame"`
}

// Hub 维护本节点上的用户连接，并把其他节点的通知转发给它们
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}

	redis       *redis.Client
	ring        *consistenthash.Ring
	nodeID      string
	presenceTTL time.Duration
	log         *logger.Logger
}

// NewHub builds a hub for nodeID. redisClient may be nil on a single node
// deployment; ring may be nil when every user is served locally.
func NewHub(redisClient *redis.Client, ring *consistenthash.Ring, nodeID string, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		users:       make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		deliver:     make(chan delivery, 256),
		done:        make(chan struct{}),
		redis:       redisClient,
		ring:        ring,
		nodeID:      nodeID,
		presenceTTL: 2 * pongWait,
		log:         log.Named("ws").WithFields(zap.String("node", nodeID)),
	}
}

// Run serves registrations and deliveries until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var remote <-chan *goredis.Message
	if h.redis != nil {
		sub, err := h.redis.Subscribe(ctx, redis.NotifyChannel(h.nodeID))
		if err != nil {
			h.log.Error("failed to subscribe to notifications, serving local users only", zap.Error(err))
		} else {
			defer sub.Close()
			remote = sub.Channel()
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.users[c.userID] == nil {
				h.users[c.userID] = make(map[*Client]struct{})
			}
			h.users[c.userID][c] = struct{}{}
			h.mu.Unlock()
			h.touch(ctx, c.userID)

		case c := <-h.unregister:
			h.drop(ctx, c)

		case d := <-h.deliver:
			h.fanout(ctx, d)

		case msg, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			var d delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil || d.Frame == nil {
				h.log.Warn("dropping malformed notification", zap.String("channel", msg.Channel))
				continue
			}
			h.fanout(ctx, d)
		}
	}
}

// Notify implements the service notifier. Delivery is best effort: a user
// without a live connection simply misses the frame.
func (h *Hub) Notify(ctx context.Context, userID string, event *model.Event) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	d := delivery{UserID: userID, Frame: frameOf(event)}
	target := h.route(ctx, userID)
	if target == h.nodeID || h.redis == nil {
		select {
		case h.deliver <- d:
			return nil
		case <-h.done:
			return ErrHubClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redis.NotifyChannel(target), payload)
}

// route picks the node holding userID's connection. Presence wins; without
// it the user's home node on the ring is assumed.
func (h *Hub) route(ctx context.Context, userID string) string {
	if h.redis != nil {
		node, err := h.redis.OnlineNode(ctx, userID)
		if err != nil {
			h.log.WarnContext(ctx, "presence lookup failed", zap.String("target_user", userID), zap.Error(err))
		} else if node != "" {
			return node
		}
	}
	if h.ring != nil {
		if node := h.ring.Get(userID); node != "" {
			return node
		}
	}
	return h.nodeID
}

// Online reports whether userID has a connection on this node.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// fanout runs on the Run goroutine only.
func (h *Hub) fanout(ctx context.Context, d delivery) {
	data, err := json.Marshal(d.Frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	var slow []*Client
	for c := range h.users[d.UserID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// 发送缓冲区已满的连接直接断开，客户端重连后重新拉取
	for _, c := range slow {
		h.log.Warn("dropping slow connection", zap.String("target_user", c.userID))
		h.drop(ctx, c)
	}
}

// drop runs on the Run goroutine only.
func (h *Hub) drop(ctx context.Context, c *Client) {
	h.mu.Lock()
	conns, ok := h.users[c.userID]
	if _, registered := conns[c]; !ok || !registered {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	last := len(conns) == 0
	if last {
		delete(h.users, c.userID)
	}
	close(c.send)
	h.mu.Unlock()

	if last && h.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if _, err := h.redis.SetOffline(ctx, c.userID, h.nodeID); err != nil {
			h.log.Warn("failed to clear presence", zap.String("target_user", c.userID), zap.Error(err))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.users {
		for c := range conns {
			close(c.send)
		}
		delete(h.users, userID)
	}
}

// touch records or refreshes the user's presence on this node.
func (h *Hub) touch(ctx context.Context, userID string) {
	if h.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := h.redis.SetOnline(ctx, userID, h.nodeID, h.presenceTTL); err != nil {
		h.log.Warn("failed to record presence", zap.String("target_user", userID), zap.Error(err))
	}
}
