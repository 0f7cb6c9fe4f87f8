package cache

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/codeflow/pkg/cfg"
)

func graph(title string) *cfg.FlowGraph {
	return &cfg.FlowGraph{
		Title: title,
		Nodes: []cfg.Node{
			{ID: "n0", Label: title, Shape: cfg.ShapeStadium, Kind: cfg.KindEntry},
			{ID: "n1", Label: "End", Shape: cfg.ShapeStadium, Kind: cfg.KindExit},
		},
		Edges:       []cfg.Edge{{From: "n0", To: "n1"}},
		LocationMap: []cfg.LocationEntry{{Start: 0, End: 10, NodeID: "n0"}},
		EntryNodeID: "n0",
		ExitNodeID:  "n1",
		Language:    "python",
		Complexity:  1,
	}
}

func TestLRUCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", graph("a"))
	c.Set("b", graph("b"))
	c.Set("c", graph("c"))

	assert.Equal(t, 3, c.Len())

	g, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "a", g.Title)

	g, found = c.Get("b")
	require.True(t, found)
	assert.Equal(t, "b", g.Title)
}

func TestLRUCache_LRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options{MaxSize: 3, OnEvict: func(key string, _ *cfg.FlowGraph) {
		evicted = append(evicted, key)
	}})

	c.Set("a", graph("a"))
	c.Set("b", graph("b"))
	c.Set("c", graph("c"))

	// Touch 'a' so 'b' becomes least recently used.
	c.Get("a")
	c.Set("d", graph("d"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, found = c.Get(key)
		assert.True(t, found, "%s should still be present", key)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := New(Options{MaxSize: 10})

	c.Set("a", graph("a"))
	c.Set("b", graph("b"))
	c.Delete("a")
	c.Delete("missing")

	assert.Equal(t, 1, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestLRUCache_Lookup(t *testing.T) {
	c := New(Options{})
	c.Set("a", graph("a"))

	g, err := c.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "a", g.Title)

	_, err = c.Lookup("b")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestLRUCache_Clear(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("a", graph("a"))
	c.Set("b", graph("b"))

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.CurrentBytes())
}

func TestLRUCache_MaxBytes(t *testing.T) {
	size := int64(estimateSize(graph("a")))
	c := New(Options{MaxBytes: size * 2})

	c.Set("a", graph("a"))
	c.Set("b", graph("b"))
	c.Set("c", graph("c"))

	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.CurrentBytes(), size*2)
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestLRUCache_Update(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("a", graph("a"))
	before := c.CurrentBytes()

	c.Set("a", graph("a longer title"))

	assert.Equal(t, 1, c.Len())
	assert.Greater(t, c.CurrentBytes(), before)
	g, _ := c.Get("a")
	assert.Equal(t, "a longer title", g.Title)
}

func TestLRUCache_Stats(t *testing.T) {
	c := New(Options{})
	c.Set("a", graph("a"))
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, 1, s.Length)
	assert.Equal(t, int64(2), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestLRUCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxSize: 10})
	c.Set("a", graph("a"))
	c.Set("b", graph("b"))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options{MaxSize: 10})
	require.NoError(t, restored.Load(&buf))

	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, c.CurrentBytes(), restored.CurrentBytes())
	g, found := restored.Get("a")
	require.True(t, found)
	assert.Equal(t, graph("a"), g)
}

func TestLRUCache_LoadKeepsRecency(t *testing.T) {
	c := New(Options{})
	c.Set("old", graph("old"))
	c.Set("new", graph("new"))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	// A smaller cache keeps only the most recently used entry.
	small := New(Options{MaxSize: 1})
	require.NoError(t, small.Load(&buf))
	_, found := small.Get("new")
	assert.True(t, found)
	_, found = small.Get("old")
	assert.False(t, found)
}

func TestLRUCache_LoadRejectsGarbage(t *testing.T) {
	c := New(Options{})
	assert.Error(t, c.Load(bytes.NewReader([]byte{0xc1})))
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "graphs.msgpack")
	c := New(Options{})
	c.Set("a", graph("a"))

	require.NoError(t, PersistToFile(c, path))

	restored := New(Options{})
	require.NoError(t, LoadFromFile(restored, path))
	assert.Equal(t, 1, restored.Len())
}

func TestPersistedFileDoesNotExist(t *testing.T) {
	c := New(Options{})
	require.NoError(t, LoadFromFile(c, filepath.Join(t.TempDir(), "missing.msgpack")))
	assert.Equal(t, 0, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("python", "src"), Key("python", "src"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}
