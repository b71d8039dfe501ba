package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	value   any
	expires time.Time
}

// Cache holds remote query results shared by every screen. Writes only
// happen through Fetch and Invalidate.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	generation uint64
	group      singleflight.Group
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func New(ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Key joins parts with ":" into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Invalidate drops every entry whose key starts with prefix. Fetches that
// started before the call do not store their result.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	dropped := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			dropped++
		}
	}
	c.logger.Debug("query cache invalidated", "prefix", prefix, "dropped", dropped)
	return dropped
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Cache) store(key string, gen uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.entries[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}

// Fetch returns the cached value for key or runs fn once for all concurrent
// callers. The shared call runs detached from ctx; a caller whose ctx ends
// stops waiting without cancelling the others.
func Fetch[T any](ctx context.Context, c *Cache, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.currentGeneration()
	flightKey := fmt.Sprintf("%s#%d", key, gen)
	detached := context.WithoutCancel(ctx)

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		v, err := fn(detached)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("query cache: unexpected value type %T for %s", res.Val, key)
		}
		return typed, nil
	}
}

// Subscribe wires invalidation to the events that make cached data stale.
func (c *Cache) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TypeResourceMutated, func(_ context.Context, ev events.Event) error {
		if be, ok := ev.(events.BaseEvent); ok {
			if resource := be.String("resource"); resource != "" {
				c.Invalidate(resource)
			}
		}
		return nil
	})
	bus.Subscribe(events.TypePermissionsStale, func(_ context.Context, ev events.Event) error {
		if be, ok := ev.(events.BaseEvent); ok {
			c.Invalidate(Key("permissions", be.String("session_id")))
		}
		return nil
	})
	bus.Subscribe(events.TypeSessionLoggedOut, func(_ context.Context, ev events.Event) error {
		if be, ok := ev.(events.BaseEvent); ok {
			c.Invalidate(Key("permissions", be.String("session_id")))
		}
		return nil
	})
}
