// Package cache provides an LRU cache of built flow graphs with disk
// persistence.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// formatVersion is bumped whenever the persisted layout changes.
const formatVersion = 1

// Entry represents a cache entry with metadata.
type Entry struct {
	Key        string         `msgpack:"key"`
	Graph      *cfg.FlowGraph `msgpack:"graph"`
	AccessedAt time.Time      `msgpack:"accessed_at"`
	CreatedAt  time.Time      `msgpack:"created_at"`
	Size       int            `msgpack:"size"` // estimated size in bytes
}

// LRUCache is an in-memory LRU cache of graphs with optional disk persistence.
type LRUCache struct {
	mu           sync.Mutex
	items        map[string]*listItem
	lru          *list // most recent at front
	maxSize      int
	maxBytes     int64
	currentBytes int64
	hits         int64
	misses       int64
	onEvict      func(key string, g *cfg.FlowGraph)
}

type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

type list struct {
	head *listItem // most recently accessed
	tail *listItem // least recently accessed
	len  int
}

func (l *list) unlink(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

func (l *list) removeBack() *listItem {
	item := l.tail
	if item == nil {
		return nil
	}
	l.unlink(item)
	return item
}

// Options configures the LRU cache.
type Options struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int
	// MaxBytes is the approximate maximum size in bytes. 0 means unlimited.
	MaxBytes int64
	// OnEvict is called when an entry is evicted or deleted.
	OnEvict func(key string, g *cfg.FlowGraph)
}

// New creates a new LRU cache with the given options.
func New(opts Options) *LRUCache {
	return &LRUCache{
		items:    make(map[string]*listItem),
		lru:      &list{},
		maxSize:  opts.MaxSize,
		maxBytes: opts.MaxBytes,
		onEvict:  opts.OnEvict,
	}
}

// Get retrieves a graph from the cache.
func (c *LRUCache) Get(key string) (*cfg.FlowGraph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Graph, true
}

// Lookup is Get with an error result for callers that propagate misses.
func (c *LRUCache) Lookup(key string) (*cfg.FlowGraph, error) {
	g, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("graph %s: %w", key, ErrKeyNotFound)
	}
	return g, nil
}

// Set stores a graph in the cache, evicting least recently used entries when
// a limit is exceeded.
func (c *LRUCache) Set(key string, g *cfg.FlowGraph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := estimateSize(g)
	now := time.Now()
	if item, exists := c.items[key]; exists {
		c.currentBytes -= int64(item.Size)
		item.Graph = g
		item.Size = size
		item.AccessedAt = now
		c.currentBytes += int64(size)
		c.lru.moveToFront(item)
		c.evictIfNeeded()
		return
	}

	item := &listItem{Entry: Entry{Key: key, Graph: g, AccessedAt: now, CreatedAt: now, Size: size}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.currentBytes += int64(size)
	c.evictIfNeeded()
}

// Delete removes a key from the cache.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	c.currentBytes -= int64(item.Size)
	if c.onEvict != nil {
		c.onEvict(key, item.Graph)
	}
}

// Clear removes all entries from the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
	c.currentBytes = 0
}

// Len returns the number of entries in the cache.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CurrentBytes returns the approximate current size in bytes.
func (c *LRUCache) CurrentBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBytes
}

func (c *LRUCache) evictIfNeeded() {
	for c.shouldEvict() {
		item := c.lru.removeBack()
		if item == nil {
			break
		}
		delete(c.items, item.Key)
		c.currentBytes -= int64(item.Size)
		if c.onEvict != nil {
			c.onEvict(item.Key, item.Graph)
		}
	}
}

func (c *LRUCache) shouldEvict() bool {
	if c.maxSize > 0 && c.lru.len > c.maxSize {
		return true
	}
	return c.maxBytes > 0 && c.currentBytes > c.maxBytes && c.lru.len > 1
}

// Stats returns cache statistics.
type Stats struct {
	Length       int     `json:"length"`
	CurrentBytes int64   `json:"current_bytes"`
	HitCount     int64   `json:"hit_count"`
	MissCount    int64   `json:"miss_count"`
	HitRate      float64 `json:"hit_rate"`
}

// Stats returns the current cache statistics.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Length:       len(c.items),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hits,
		MissCount:    c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

type snapshot struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Save persists the cache to a writer using msgpack, most recent entry first.
func (c *LRUCache) Save(w io.Writer) error {
	c.mu.Lock()
	data := snapshot{Version: formatVersion, Entries: make([]Entry, 0, len(c.items))}
	for item := c.lru.head; item != nil; item = item.next {
		data.Entries = append(data.Entries, item.Entry)
	}
	c.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(&data)
}

// Load replaces the cache contents with entries read from r. Snapshots
// written by another format version are ignored.
func (c *LRUCache) Load(r io.Reader) error {
	var data snapshot
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
	c.currentBytes = 0
	if data.Version != formatVersion {
		return nil
	}
	for i := len(data.Entries) - 1; i >= 0; i-- {
		entry := data.Entries[i]
		if entry.Graph == nil {
			continue
		}
		item := &listItem{Entry: entry}
		c.items[entry.Key] = item
		c.lru.pushFront(item)
		c.currentBytes += int64(entry.Size)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves the cache to a file, replacing it atomically.
func PersistToFile(c *LRUCache, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Save(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFromFile loads the cache from a file. A missing file is not an error.
func LoadFromFile(c *LRUCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}

// estimateSize approximates the memory held by a graph.
func estimateSize(g *cfg.FlowGraph) int {
	if g == nil {
		return 0
	}
	size := len(g.Title) + len(g.Language)
	for _, n := range g.Nodes {
		size += 48 + len(n.ID) + len(n.Label)
	}
	for _, e := range g.Edges {
		size += 48 + len(e.From) + len(e.To) + len(e.Label)
	}
	size += len(g.LocationMap) * 32
	return size
}

// Ensure LRUCache satisfies the graph store used by the flowchart package.
var _ interface {
	Get(string) (*cfg.FlowGraph, bool)
	Set(string, *cfg.FlowGraph)
} = (*LRUCache)(nil)
