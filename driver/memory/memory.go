// Package memory implements an in-process driver with optional capacity-bound
// LRU eviction.
package memory

import (
	"bytes"
	"context"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/log"
)

const name = "memory"

// Compile-time check that Driver implements driver.Driver.
var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Capacity   int           // max entries; 0 => unbounded
	DefaultTTL time.Duration // applied for driver.DefaultTTL; 0 => never expires
	Logger     log.Logger
	Hooks      hooks.Hooks
	Clock      driver.Clock
}

// Driver keeps entries in process memory. Safe for concurrent use.
type Driver struct {
	mu         sync.Mutex // serializes writes that inspect the cache first
	c          *lru.Cache[string, driver.Entry]
	capacity   int
	defaultTTL time.Duration
	log        log.Logger
	hooks      hooks.Hooks
	clock      driver.Clock
}

func New(opts Options) (*Driver, error) {
	size := opts.Capacity
	if size <= 0 {
		size = math.MaxInt // unbounded; the lru map grows lazily
	}
	c, err := lru.New[string, driver.Entry](size)
	if err != nil {
		return nil, err
	}
	return &Driver{
		c:          c,
		capacity:   opts.Capacity,
		defaultTTL: opts.DefaultTTL,
		log:        log.OrNop(opts.Logger),
		hooks:      hooks.OrNop(opts.Hooks),
		clock:      opts.Clock,
	}, nil
}

// Len returns the number of stored entries, expired ones included.
func (d *Driver) Len() int { return d.c.Len() }

func (d *Driver) Get(_ context.Context, key string) driver.Entry {
	e, ok := d.c.Get(key)
	if !ok {
		return driver.Entry{}
	}
	if now := d.clock.Now(); !e.IsHit(now) {
		d.expire(key, now)
		return driver.Entry{}
	}
	return clone(e)
}

// expire removes key only if it is still expired, so a write racing with the
// read survives.
func (d *Driver) expire(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.c.Peek(key); ok && !e.IsHit(now) {
		d.c.Remove(key)
		return true
	}
	return false
}

func (d *Driver) Has(_ context.Context, key string) bool {
	e, ok := d.c.Peek(key)
	return ok && e.IsHit(d.clock.Now())
}

func (d *Driver) Set(ctx context.Context, it driver.Item) bool {
	if it.Key == "" {
		return false
	}
	if it.IsDelete() {
		return d.Delete(ctx, it.Key)
	}
	e := driver.Entry{
		Key:    it.Key,
		Value:  bytes.Clone(it.Value),
		Expiry: driver.ExpiryFor(d.clock.Now(), it.TTL, d.defaultTTL),
		Tags:   append([]string(nil), it.Tags...),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capacity > 0 && !d.c.Contains(it.Key) && d.c.Len() >= d.capacity {
		if k, _, ok := d.c.RemoveOldest(); ok {
			d.log.Debug("memory driver evicted entry", log.Fields{"key": k})
			d.hooks.Evicted(name, k)
		}
	}
	d.c.Add(it.Key, e)
	return true
}

func (d *Driver) Delete(_ context.Context, key string) bool {
	d.c.Remove(key)
	return true
}

func (d *Driver) Clear(context.Context) bool {
	d.c.Purge()
	return true
}

// Purge drops expired entries without touching recency.
func (d *Driver) Purge(context.Context) bool {
	now := d.clock.Now()
	removed := 0
	for _, k := range d.c.Keys() {
		if d.expire(k, now) {
			removed++
		}
	}
	if removed > 0 {
		d.log.Debug("memory driver purged expired entries", log.Fields{"removed": removed})
	}
	return true
}

func (d *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	return driver.SequentialGetMany(ctx, d, keys)
}

func (d *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	return driver.SequentialSetMany(ctx, d, items)
}

func (d *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	return driver.SequentialDeleteMany(ctx, d, keys)
}

func (d *Driver) Close(context.Context) error {
	d.c.Purge()
	return nil
}

func clone(e driver.Entry) driver.Entry {
	e.Value = bytes.Clone(e.Value)
	e.Tags = append([]string(nil), e.Tags...)
	return e
}
