package cache

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration) (*TTLCache, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c := New(Options{TTL: ttl, Now: clock.Now})
	t.Cleanup(c.Close)
	return c, clock
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	values := map[string]any{
		"string": "hello",
		"number": 42.5,
		"bool":   true,
		"null":   nil,
		"array":  []any{1.0, "two", map[string]any{"three": 3.0}},
		"object": map[string]any{"revenue": 120.0, "month": 3.0},
	}

	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			c.Set(name, v)

			raw, ok := c.Get(name)
			require.True(t, ok)

			var got any
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, v, got)
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Set("k", "value")

	raw, ok := c.Get("k")
	require.True(t, ok)
	raw[1] = 'X'

	again, ok := c.Get("k")
	require.True(t, ok)
	assert.JSONEq(t, `"value"`, string(again))
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestTTLExpiry(t *testing.T) {
	c, clock := newTestCache(t, 10*time.Second)
	c.Set("k", 1)

	clock.Advance(10 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry exactly at the TTL is still live")

	clock.Advance(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries, "expired entry is evicted on read")
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestSetRefreshesTimestamp(t *testing.T) {
	c, clock := newTestCache(t, 10*time.Second)
	c.Set("k", 1)

	clock.Advance(8 * time.Second)
	c.Set("k", 2)
	clock.Advance(8 * time.Second)

	raw, ok := c.Get("k")
	require.True(t, ok)
	assert.JSONEq(t, `2`, string(raw))
}

func TestSetUnencodableValueIsDropped(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Set("k", "old")

	assert.NotPanics(t, func() {
		c.Set("k", math.Inf(1))
		c.Set("ch", make(chan int))
	})

	raw, ok := c.Get("k")
	require.True(t, ok)
	assert.JSONEq(t, `"old"`, string(raw))
	_, ok = c.Get("ch")
	assert.False(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Set("sql:42:1:select a", 1)
	c.Set("sql:42:2:select b", 2)
	c.Set("sql:420:1:select c", 3)
	c.Set("sql:7:1:select a", 4)
	c.Set("widgets:42:1:main", 5)

	removed := c.Invalidate("sql:42:")

	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"sql:420:1:select c", "sql:7:1:select a", "widgets:42:1:main"}, c.Keys())
}

func TestInvalidateExactKeyOnly(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Set("sql:1:1:select", 1)
	c.Set("sql:1:1:select x", 2)

	removed := c.Invalidate("sql:1:1:select")

	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"sql:1:1:select x"}, c.Keys())
}

func TestInvalidateNoMatchIsNoop(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Set("sql:1:1:q", 1)

	assert.Equal(t, 0, c.Invalidate("sql:2:"))
	assert.Equal(t, 0, c.Invalidate(""))
	assert.Equal(t, []string{"sql:1:1:q"}, c.Keys())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestCleanupSweepsOnlyExpired(t *testing.T) {
	c, clock := newTestCache(t, 10*time.Second)
	c.Set("old", 1)
	clock.Advance(6 * time.Second)
	c.Set("new", 2)
	clock.Advance(6 * time.Second)

	assert.Equal(t, 1, c.Stats().Expired)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, []string{"new"}, c.Keys())
}

func TestBackgroundSweep(t *testing.T) {
	c := New(Options{TTL: 20 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	defer c.Close()

	c.Set("k", 1)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(Options{TTL: time.Minute, CleanupInterval: time.Millisecond})
	c.Close()
	c.Close()

	noSweep := New(Options{TTL: time.Minute})
	noSweep.Close()
}

func TestGetJSON(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	type record struct {
		Title string `json:"title"`
	}
	c.Set("ok", []record{{Title: "Revenue"}})
	c.Set("bad", "not a list")

	got, ok := GetJSON[[]record](c, "ok")
	require.True(t, ok)
	assert.Equal(t, []record{{Title: "Revenue"}}, got)

	_, ok = GetJSON[[]record](c, "bad")
	assert.False(t, ok)
	assert.Equal(t, []string{"ok"}, c.Keys(), "undecodable entry is dropped")
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Options{TTL: time.Millisecond, CleanupInterval: time.Millisecond})
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := Key(NamespaceSQL, int64(i%2), int64(j%3), "q")
				c.Set(key, j)
				c.Get(key)
				if j%50 == 0 {
					c.Invalidate(TenantPrefix(NamespaceSQL, int64(i%2)))
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestKeyComposition(t *testing.T) {
	assert.Equal(t, "sql:42:7:select 1", Key(NamespaceSQL, 42, 7, "select 1"))
	assert.Equal(t, "sql:42:", TenantPrefix(NamespaceSQL, 42))
}
