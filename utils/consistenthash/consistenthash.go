// Package consistenthash maps user IDs onto gateway nodes. Every node of the
// cluster builds the same ring from the same node list, so all of them agree
// on where a user's WebSocket connections live.
package consistenthash

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/twmb/murmur3"
)

// Hash maps bytes onto the ring.
type Hash func(data []byte) uint32

const defaultReplicas = 50

// Ring 一致性哈希环，每个真实节点对应 replicas 个虚拟节点
type Ring struct {
	mu       sync.RWMutex
	hash     Hash
	replicas int
	points   []uint32
	owners   map[uint32]string
	nodes    map[string]struct{}
}

// New builds an empty ring. A nil fn selects murmur3; replicas <= 0 selects 50.
func New(replicas int, fn Hash) *Ring {
	if fn == nil {
		fn = murmur3.Sum32
	}
	if replicas <= 0 {
		replicas = defaultReplicas
	}
	return &Ring{
		hash:     fn,
		replicas: replicas,
		owners:   make(map[uint32]string),
		nodes:    make(map[string]struct{}),
	}
}

func (r *Ring) point(node string, i int) uint32 {
	return r.hash([]byte(node + "#" + strconv.Itoa(i)))
}

// Add places nodes on the ring. Empty names and nodes already present are ignored.
func (r *Ring) Add(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range nodes {
		if _, ok := r.nodes[node]; ok || node == "" {
			continue
		}
		r.nodes[node] = struct{}{}
		for i := range r.replicas {
			p := r.point(node, i)
			// 哈希碰撞时保留字典序较小的节点，保证各实例结果一致
			if owner, taken := r.owners[p]; taken && owner < node {
				continue
			}
			r.owners[p] = node
		}
	}
	r.rebuild()
}

// Remove takes nodes off the ring.
func (r *Ring) Remove(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range nodes {
		if _, ok := r.nodes[node]; !ok {
			continue
		}
		delete(r.nodes, node)
		for p, owner := range r.owners {
			if owner == node {
				delete(r.owners, p)
			}
		}
	}
	// 被移除节点覆盖过的碰撞点需要还给剩余节点
	for node := range r.nodes {
		for i := range r.replicas {
			p := r.point(node, i)
			if owner, taken := r.owners[p]; !taken || node < owner {
				r.owners[p] = node
			}
		}
	}
	r.rebuild()
}

// rebuild is called with the write lock held.
func (r *Ring) rebuild() {
	r.points = r.points[:0]
	for p := range r.owners {
		r.points = append(r.points, p)
	}
	slices.Sort(r.points)
}

// search is called with the read lock held.
func (r *Ring) search(key string) int {
	h := r.hash([]byte(key))
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] >= h })
	if idx == len(r.points) {
		idx = 0
	}
	return idx
}

// Get returns the node owning key, or "" when the ring is empty.
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 {
		return ""
	}
	return r.owners[r.points[r.search(key)]]
}

// GetN returns up to n distinct nodes clockwise from key, the owner first.
func (r *Ring) GetN(key string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 || n <= 0 {
		return nil
	}
	n = min(n, len(r.nodes))
	out := make([]string, 0, n)
	start := r.search(key)
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		node := r.owners[r.points[(start+i)%len(r.points)]]
		if !slices.Contains(out, node) {
			out = append(out, node)
		}
	}
	return out
}

// Nodes returns the real nodes in sorted order.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nodes))
	for node := range r.nodes {
		out = append(out, node)
	}
	slices.Sort(out)
	return out
}

func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
