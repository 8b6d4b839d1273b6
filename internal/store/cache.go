// Package store is the in-memory query cache shared by the request/response
// client and the event reconciler. Values are immutable snapshots; writers
// replace them wholesale.
package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/c-pro/geche"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
)

var ErrNotCached = errors.New("not cached")

type entry struct {
	value any
	stale bool
}

// KeysChange is the payload of cache.* bus events.
type KeysChange struct {
	Keys []Key `json:"keys"`
}

type Cache struct {
	locker *geche.Locker[Key, entry]
	bus    *bus.Bus
	log    *zap.Logger
}

func NewCache(b *bus.Bus, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		locker: geche.NewLocker[Key, entry](geche.NewMapCache[Key, entry]()),
		bus:    b,
		log:    log,
	}
}

// Get returns the value under key and whether it has been invalidated.
func (c *Cache) Get(key Key) (any, bool, error) {
	tx := c.locker.RLock()
	defer tx.Unlock()
	e, err := tx.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", key, ErrNotCached)
	}
	return e.value, e.stale, nil
}

// Set stores a fresh value under key.
func (c *Cache) Set(key Key, value any) {
	tx := c.locker.Lock()
	tx.Set(key, entry{value: value})
	tx.Unlock()
	c.publish(bus.KindUpdated, key)
}

// Update atomically replaces the value under key with fn's result. fn is not
// called when nothing is cached; it reports whether it changed anything.
// The stale flag is preserved.
func (c *Cache) Update(key Key, fn func(any) (any, bool)) bool {
	tx := c.locker.Lock()
	e, err := tx.Get(key)
	if err != nil {
		tx.Unlock()
		return false
	}
	next, changed := fn(e.value)
	if changed {
		tx.Set(key, entry{value: next, stale: e.stale})
	}
	tx.Unlock()

	if changed {
		c.publish(bus.KindUpdated, key)
	}
	return changed
}

// Invalidate marks keys stale so the next read refetches them. Missing keys
// are ignored.
func (c *Cache) Invalidate(keys ...Key) {
	tx := c.locker.Lock()
	var hit []Key
	for _, k := range keys {
		if e, err := tx.Get(k); err == nil {
			e.stale = true
			tx.Set(k, e)
			hit = append(hit, k)
		}
	}
	tx.Unlock()
	if len(hit) > 0 {
		c.publish(bus.KindInvalidated, hit...)
	}
}

// InvalidatePrefix marks every key starting with prefix stale.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.Invalidate(c.keysWithPrefix(prefix)...)
}

// Remove drops keys entirely.
func (c *Cache) Remove(keys ...Key) {
	tx := c.locker.Lock()
	var hit []Key
	for _, k := range keys {
		if _, err := tx.Get(k); err == nil {
			_ = tx.Del(k)
			hit = append(hit, k)
		}
	}
	tx.Unlock()
	if len(hit) > 0 {
		c.publish(bus.KindRemoved, hit...)
	}
}

// Clear drops everything. Used at teardown.
func (c *Cache) Clear() {
	c.Remove(c.Keys()...)
}

// Keys returns the cached keys, sorted.
func (c *Cache) Keys() []Key {
	return c.keysWithPrefix("")
}

func (c *Cache) keysWithPrefix(prefix string) []Key {
	tx := c.locker.RLock()
	snap := tx.Snapshot()
	tx.Unlock()

	keys := make([]Key, 0, len(snap))
	for k := range snap {
		if k.HasPrefix(prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func (c *Cache) publish(kind string, keys ...Key) {
	c.log.Debug("cache change", zap.String("kind", kind), zap.Int("keys", len(keys)))
	c.bus.Publish(bus.Event{Kind: kind, Payload: KeysChange{Keys: keys}})
}

// Load returns the typed value under key. A value of another type is
// reported as not cached.
func Load[T any](c *Cache, key Key) (T, bool, error) {
	var zero T
	v, stale, err := c.Get(key)
	if err != nil {
		return zero, false, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, false, fmt.Errorf("%s holds %T: %w", key, v, ErrNotCached)
	}
	return t, stale, nil
}

// Modify is the typed form of Cache.Update.
func Modify[T any](c *Cache, key Key, fn func(T) (T, bool)) bool {
	return c.Update(key, func(v any) (any, bool) {
		t, ok := v.(T)
		if !ok {
			return v, false
		}
		return fn(t)
	})
}
