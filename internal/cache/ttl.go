package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/metrics"
)

const (
	DefaultTTL             = 600 * time.Second
	DefaultCleanupInterval = time.Minute
)

// WriteError describes a value that could not be stored. It is logged and
// never returned to callers.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write %q: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Options configures a TTLCache.
type Options struct {
	TTL time.Duration
	// CleanupInterval is the period of the background sweep. Zero disables it.
	CleanupInterval time.Duration
	Logger          *zap.Logger
	Metrics         *metrics.Collector
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

type entry struct {
	value      json.RawMessage
	insertedAt time.Time
}

// TTLCache is a process-lifetime key/value store with per-entry expiry and
// prefix invalidation. Values are held as JSON.
//
// Expired entries are removed lazily by Get or eagerly by the sweep,
// whichever comes first. All operations take the same mutex.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]entry
	hits    uint64
	misses  uint64

	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Collector

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its sweep when opts.CleanupInterval > 0.
// Call Close to stop the sweep.
func New(opts Options) *TTLCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &TTLCache{
		entries: make(map[string]entry),
		ttl:     opts.TTL,
		now:     opts.Now,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	if opts.CleanupInterval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop(opts.CleanupInterval)
	}
	return c
}

// Get returns a copy of the stored JSON. An entry older than the TTL is
// deleted and reported as a miss.
func (c *TTLCache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.metrics.CacheMiss()
		return nil, false
	}

	if c.expired(e, c.now()) {
		delete(c.entries, key)
		c.misses++
		c.metrics.CacheMiss()
		c.metrics.CacheEvicted("expired", 1)
		return nil, false
	}

	c.hits++
	c.metrics.CacheHit()
	out := make(json.RawMessage, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set encodes value as JSON and stores it, overwriting any previous entry.
// Encoding failures are logged and dropped.
func (c *TTLCache) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache write failed",
			zap.String("key", key),
			zap.Error(&WriteError{Key: key, Err: err}),
		)
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{value: data, insertedAt: c.now()}
	c.mu.Unlock()
}

// Delete removes exactly one key and reports whether it was present.
func (c *TTLCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.metrics.CacheEvicted("invalidated", 1)
	return true
}

// Invalidate removes keyOrPrefix if it is an exact key, otherwise every key
// starting with it. It returns the number of removed entries. An empty
// argument matches nothing; use Clear to drop everything.
//
// Prefix removal scans the whole key set.
func (c *TTLCache) Invalidate(keyOrPrefix string) int {
	if keyOrPrefix == "" {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[keyOrPrefix]; ok {
		delete(c.entries, keyOrPrefix)
		c.metrics.CacheEvicted("invalidated", 1)
		return 1
	}

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, keyOrPrefix) {
			delete(c.entries, k)
			removed++
		}
	}
	c.metrics.CacheEvicted("invalidated", removed)
	return removed
}

func (c *TTLCache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.metrics.CacheEvicted("cleared", n)
}

// Cleanup deletes every expired entry and returns how many were removed.
func (c *TTLCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.metrics.CacheEvicted("swept", removed)
	return removed
}

// Stats contains cache statistics
type Stats struct {
	Entries int           `json:"entries"`
	Expired int           `json:"expired"`
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
	TTL     time.Duration `json:"ttl"`
}

func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, e := range c.entries {
		if c.expired(e, now) {
			expired++
		}
	}

	return Stats{
		Entries: len(c.entries),
		Expired: expired,
		Hits:    c.hits,
		Misses:  c.misses,
		TTL:     c.ttl,
	}
}

// Keys returns the stored keys in sorted order, including expired entries not yet swept.
func (c *TTLCache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Strings(keys)
	return keys
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweep. Safe to call more than once.
func (c *TTLCache) Close() {
	if c.stop == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *TTLCache) expired(e entry, now time.Time) bool {
	return now.Sub(e.insertedAt) > c.ttl
}

func (c *TTLCache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				c.logger.Debug("cache sweep", zap.Int("removed", n))
			}
		}
	}
}

// GetJSON decodes the value stored under key into T. An entry that no longer
// decodes is deleted and reported as a miss.
func GetJSON[T any](c *TTLCache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.Delete(key)
		var zero T
		return zero, false
	}
	return out, true
}
