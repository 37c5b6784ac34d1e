// ABOUTME: Thread-safe TTL cache of recently decoded packet keys.
// ABOUTME: The dispatcher consults it so one physical packet yields one record.

package dedupe

import (
	"container/list"
	"strconv"
	"sync"
	"time"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL     = 30 * time.Second
	DefaultMaxSize = 1024
)

// cacheEntry stores when a key was marked and its place in the order list.
type cacheEntry struct {
	marked  time.Time
	element *list.Element
}

// Options configures a Cache.
type Options struct {
	TTL     time.Duration
	MaxSize int
	// Now overrides the clock, for tests.
	Now func() time.Time
	// SweepInterval is how often expired keys are dropped. Zero picks the
	// smaller of TTL and one minute; negative disables the sweeper.
	SweepInterval time.Duration
}

// Cache is a TTL and size bounded set of keys. The oldest key is evicted
// first when full.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its sweeper.
func New(opts Options) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
		done:    make(chan struct{}),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxSize
	}
	if c.now == nil {
		c.now = time.Now
	}

	interval := opts.SweepInterval
	if interval == 0 {
		interval = min(c.ttl, time.Minute)
	}
	if interval > 0 {
		go c.sweep(interval)
	}
	return c
}

// PacketKey identifies a packet by sender and packet id. It reports false
// when either is missing, in which case the packet cannot be deduplicated.
func PacketKey(from, id *int64) (string, bool) {
	if from == nil || id == nil || *id == 0 {
		return "", false
	}
	return strconv.FormatInt(*from, 10) + ":" + strconv.FormatInt(*id, 10), true
}

// Contains reports whether key was marked within the TTL.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.seen[key]
	return ok && c.now().Sub(entry.marked) < c.ttl
}

// CheckAndMark reports whether key was already seen within the TTL, marking
// it when it was not. The check and the mark happen under one lock.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.seen[key]; ok && now.Sub(entry.marked) < c.ttl {
		return true
	}
	c.markLocked(key, now)
	return false
}

// Mark records key as seen now.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key, c.now())
}

// Len returns the number of keys held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string, now time.Time) {
	if entry, ok := c.seen[key]; ok {
		entry.marked = now
		c.order.MoveToBack(entry.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seen[key] = &cacheEntry{marked: now, element: c.order.PushBack(key)}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Expire()
		case <-c.done:
			return
		}
	}
}

// Expire drops every key older than the TTL. Keys are ordered by mark time,
// so it stops at the first live one.
func (c *Cache) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		entry := c.seen[key]
		if now.Sub(entry.marked) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.seen, key)
		e = next
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
