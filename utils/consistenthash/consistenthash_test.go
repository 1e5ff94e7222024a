package consistenthash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRing_Empty(t *testing.T) {
	r := New(0, nil)
	assert.Equal(t, "", r.Get("user-1"))
	assert.Nil(t, r.GetN("user-1", 3))
	assert.Zero(t, r.Size())
	assert.Equal(t, defaultReplicas, r.replicas)
}

func TestRing_AddIgnoresDuplicatesAndBlanks(t *testing.T) {
	r := New(10, nil)
	r.Add("node-1", "node-1", "", "node-2")
	assert.Equal(t, []string{"node-1", "node-2"}, r.Nodes())
	assert.Len(t, r.points, 20)
}

func TestRing_CustomHash(t *testing.T) {
	// Each node sits at the integer written after '#', keys hash to their length.
	hash := func(data []byte) uint32 {
		var n uint32
		if _, err := fmt.Sscanf(string(data), "n%d#", &n); err == nil {
			return n * 10
		}
		return uint32(len(data))
	}
	r := New(1, hash)
	r.Add("n1", "n3", "n5")

	assert.Equal(t, "n1", r.Get("abcdefgh"))       // 8 -> 10
	assert.Equal(t, "n3", r.Get("abcdefghijklmno")) // 15 -> 30
	assert.Equal(t, "n1", r.Get(string(make([]byte, 60))))
	assert.Equal(t, []string{"n3", "n5", "n1"}, r.GetN("abcdefghijklmno", 5))
}

func TestRing_Stable(t *testing.T) {
	a, b := New(50, nil), New(50, nil)
	a.Add("node-1", "node-2", "node-3")
	b.Add("node-3", "node-1", "node-2")
	for i := range 200 {
		key := fmt.Sprintf("user-%d", i)
		require.Equal(t, a.Get(key), b.Get(key), key)
	}
}

func TestRing_Distribution(t *testing.T) {
	r := New(100, nil)
	r.Add("node-1", "node-2", "node-3", "node-4")
	counts := map[string]int{}
	for i := range 10000 {
		counts[r.Get(fmt.Sprintf("user-%d", i))]++
	}
	require.Len(t, counts, 4)
	for node, n := range counts {
		assert.Greater(t, n, 1000, node)
	}
}

// Removing a node only moves the keys it owned.
func TestProperty_RemoveMovesOnlyOwnedKeys(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(rt, "nodes")
		nodes := make([]string, n)
		for i := range nodes {
			nodes[i] = fmt.Sprintf("node-%d", i)
		}
		r := New(rapid.IntRange(1, 60).Draw(rt, "replicas"), nil)
		r.Add(nodes...)

		keys := rapid.SliceOfN(rapid.StringMatching(`user-[0-9a-f]{1,12}`), 1, 50).Draw(rt, "keys")
		before := make(map[string]string, len(keys))
		for _, k := range keys {
			before[k] = r.Get(k)
		}

		gone := nodes[rapid.IntRange(0, n-1).Draw(rt, "removed")]
		r.Remove(gone)
		if r.Size() != n-1 {
			rt.Fatalf("size %d after removing one of %d nodes", r.Size(), n)
		}
		for _, k := range keys {
			after := r.Get(k)
			if after == gone {
				rt.Fatalf("key %s still routed to removed node", k)
			}
			if before[k] != gone && after != before[k] {
				rt.Fatalf("key %s moved from %s to %s", k, before[k], after)
			}
		}

		r.Add(gone)
		for _, k := range keys {
			if got := r.Get(k); got != before[k] {
				rt.Fatalf("key %s routed to %s after re-adding, want %s", k, got, before[k])
			}
		}
	})
}

func TestProperty_GetNDistinct(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "nodes")
		r := New(20, nil)
		for i := range n {
			r.Add(fmt.Sprintf("node-%d", i))
		}
		key := rapid.String().Draw(rt, "key")
		want := rapid.IntRange(1, 10).Draw(rt, "n")

		got := r.GetN(key, want)
		if len(got) != min(want, n) {
			rt.Fatalf("GetN returned %d nodes, want %d", len(got), min(want, n))
		}
		if got[0] != r.Get(key) {
			rt.Fatalf("GetN starts at %s, Get returns %s", got[0], r.Get(key))
		}
		seen := map[string]bool{}
		for _, node := range got {
			if seen[node] {
				rt.Fatalf("duplicate node %s", node)
			}
			seen[node] = true
		}
	})
}
