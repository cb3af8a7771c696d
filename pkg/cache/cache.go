// Package cache provides LRU caching of guard satisfiability results with
// disk persistence, so repeated runs over the same tree skip re-solving
// unchanged conditionals.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultFileName is the on-disk cache file created under the project
// config directory.
const DefaultFileName = "guardcache.msgpack"

// GuardResult is the cached outcome of solving one conditional guard.
type GuardResult struct {
	Satisfiable bool       `msgpack:"satisfiable"`
	Subsets     [][]string `msgpack:"subsets"`
}

// Entry represents a cache entry with metadata.
type Entry struct {
	Key        string      `msgpack:"key"`
	Value      GuardResult `msgpack:"value"`
	AccessedAt time.Time   `msgpack:"accessed_at"`
	CreatedAt  time.Time   `msgpack:"created_at"`
}

// listItem is an item in the doubly-linked list.
type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

// list is a doubly-linked list with the most recently used item at the front.
type list struct {
	head *listItem
	tail *listItem
	len  int
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	if item.prev != nil {
		item.prev.next = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	}
	if item == l.tail {
		l.tail = item.prev
	}

	item.prev = nil
	item.next = l.head
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
}

func (l *list) removeBack() *listItem {
	if l.tail == nil {
		return nil
	}
	item := l.tail
	l.tail = item.prev
	if l.tail != nil {
		l.tail.next = nil
	} else {
		l.head = nil
	}
	l.len--
	return item
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

// GuardCache is an in-memory LRU cache of guard results with optional
// disk persistence.
type GuardCache struct {
	mu      sync.RWMutex
	items   map[string]*listItem
	lru     *list
	maxSize int
	hits    int64
	misses  int64
}

// New creates a cache holding at most maxSize entries. Zero means unlimited.
func New(maxSize int) *GuardCache {
	return &GuardCache{
		items:   make(map[string]*listItem),
		lru:     &list{},
		maxSize: maxSize,
	}
}

// Key derives a stable cache key from a guard condition, the flags it
// mentions, and the baseline defines in effect. Flag and define order does
// not affect the key.
func Key(condition string, flags, defines []string) string {
	sortedFlags := append([]string(nil), flags...)
	sort.Strings(sortedFlags)
	sortedDefines := append([]string(nil), defines...)
	sort.Strings(sortedDefines)

	h := sha256.New()
	io.WriteString(h, condition)
	io.WriteString(h, "\x00")
	io.WriteString(h, strings.Join(sortedFlags, ","))
	io.WriteString(h, "\x00")
	io.WriteString(h, strings.Join(sortedDefines, ","))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a result from the cache.
func (c *GuardCache) Get(key string) (GuardResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		return GuardResult{}, false
	}

	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.Value, true
}

// Set stores a result in the cache, evicting the least recently used
// entry when the size limit is exceeded.
func (c *GuardCache) Set(key string, value GuardResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		item.Value = value
		item.AccessedAt = time.Now()
		c.lru.moveToFront(item)
		return
	}

	item := &listItem{
		Entry: Entry{
			Key:        key,
			Value:      value,
			AccessedAt: time.Now(),
			CreatedAt:  time.Now(),
		},
	}
	c.items[key] = item
	c.lru.pushFront(item)

	for c.maxSize > 0 && c.lru.len > c.maxSize {
		evicted := c.lru.removeBack()
		if evicted == nil {
			break
		}
		delete(c.items, evicted.Key)
	}
}

// Delete removes a key from the cache.
func (c *GuardCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}

	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.lru.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.lru.tail = item.prev
	}
	c.lru.len--
	delete(c.items, key)
}

// Clear removes all entries from the cache.
func (c *GuardCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
}

// Len returns the number of entries in the cache.
func (c *GuardCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats holds cache hit counters.
type Stats struct {
	Length int   `json:"length"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats returns the current cache statistics.
func (c *GuardCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Length: len(c.items), Hits: c.hits, Misses: c.misses}
}

// HitRate returns the fraction of lookups served from the cache.
func (c *GuardCache) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Save persists the cache to a writer using msgpack, most recently used
// entries first so Load rebuilds the same LRU order.
func (c *GuardCache) Save(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.items))
	for item := c.lru.head; item != nil; item = item.next {
		entries = append(entries, item.Entry)
	}

	return msgpack.NewEncoder(w).Encode(entries)
}

// Load restores the cache from a reader, replacing current contents.
func (c *GuardCache) Load(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []Entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.items = make(map[string]*listItem)
	c.lru = &list{}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		item := &listItem{Entry: entry}
		c.items[entry.Key] = item
		c.lru.pushFront(item)
	}
	return nil
}

// PersistToFile saves the cache to a file.
func PersistToFile(c *GuardCache, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()
	return c.Save(f)
}

// LoadFromFile loads the cache from a file. A missing file is not an error.
func LoadFromFile(c *GuardCache, path string) error {
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
