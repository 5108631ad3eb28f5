// Package chain presents several drivers as one, fastest tier first.
//
// Reads walk the tiers in order. A hit below tier 0 is copied into every faster
// tier with the entry's remaining lifetime, so promoted copies never outlive
// the source. Writes fan out to every tier and succeed only when all tiers
// accepted them.
package chain

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/log"
)

var (
	_ driver.Driver    = (*Driver)(nil)
	_ driver.Composite = (*Driver)(nil)
)

type Options struct {
	Logger log.Logger
	Hooks  hooks.Hooks
	Clock  driver.Clock
}

type Driver struct {
	tiers []driver.Driver
	log   log.Logger
	hooks hooks.Hooks
	clock driver.Clock
}

// New builds a chain over tiers. It rejects an empty chain, nil tiers and any
// driver that would be reachable twice, directly or through a nested chain.
func New(opts Options, tiers ...driver.Driver) (*Driver, error) {
	if len(tiers) == 0 {
		return nil, configErr("at least one driver is required")
	}
	c := &Driver{
		log:   log.OrNop(opts.Logger),
		hooks: hooks.OrNop(opts.Hooks),
		clock: opts.Clock,
	}
	for _, t := range tiers {
		if err := c.Append(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func configErr(reason string) error {
	return &driver.ConfigError{Component: "chain", Reason: reason}
}

// Append adds d as the slowest tier.
func (c *Driver) Append(d driver.Driver) error {
	if d == nil {
		return configErr("nil driver")
	}
	reach := reachable(d)
	if contains(reach, c) {
		return configErr("a chain cannot contain itself")
	}
	for i, t := range c.tiers {
		for _, r := range reachable(t) {
			if contains(reach, r) {
				return configErr(fmt.Sprintf("driver %T is already part of tier %d", r, i))
			}
		}
	}
	c.tiers = append(c.tiers, d)
	return nil
}

// Members returns the tiers, fastest first.
func (c *Driver) Members() []driver.Driver {
	return append([]driver.Driver(nil), c.tiers...)
}

// reachable lists d and every driver it wraps or chains, transitively.
func reachable(d driver.Driver) []driver.Driver {
	out := []driver.Driver{d}
	if w, ok := d.(driver.Wrapper); ok {
		if inner := w.Unwrap(); inner != nil {
			out = append(out, reachable(inner)...)
		}
	}
	if comp, ok := d.(driver.Composite); ok {
		for _, m := range comp.Members() {
			out = append(out, reachable(m)...)
		}
	}
	return out
}

func contains(set []driver.Driver, d driver.Driver) bool {
	for _, s := range set {
		if same(s, d) {
			return true
		}
	}
	return false
}

// same compares drivers by identity.
func same(a, b driver.Driver) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		return va.Pointer() == vb.Pointer()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}

func (c *Driver) Get(ctx context.Context, key string) driver.Entry {
	for i, t := range c.tiers {
		e := t.Get(ctx, key)
		if e.Value == nil {
			continue
		}
		e.Key = key
		if i > 0 {
			c.promote(ctx, i, []driver.Entry{e})
		}
		return e
	}
	return driver.Entry{}
}

// promote copies entries found at tier from into tiers 0..from-1.
func (c *Driver) promote(ctx context.Context, from int, entries []driver.Entry) {
	now := c.clock.Now()
	items := make([]driver.Item, 0, len(entries))
	for _, e := range entries {
		ttl := e.Remaining(now)
		if ttl < 0 {
			continue
		}
		items = append(items, driver.Item{Key: e.Key, Value: e.Value, TTL: ttl, Tags: e.Tags})
	}
	if len(items) == 0 {
		return
	}
	top := false
	for j := 0; j < from; j++ {
		var ok bool
		if len(items) == 1 {
			ok = c.tiers[j].Set(ctx, items[0])
		} else {
			ok = c.tiers[j].SetMany(ctx, items)
		}
		if !ok {
			c.log.Debug("chain promotion failed", log.Fields{"from": from, "into": j, "count": len(items)})
			continue
		}
		if j == 0 {
			top = true
		}
	}
	if !top {
		return
	}
	for _, it := range items {
		c.hooks.Promoted(it.Key, from, 0)
	}
}

// Has reads through like Get, so a hit in a slower tier is promoted.
func (c *Driver) Has(ctx context.Context, key string) bool {
	return c.Get(ctx, key).Value != nil
}

// all applies fn to every tier without short-circuiting.
func (c *Driver) all(fn func(driver.Driver) bool) bool {
	ok := true
	for _, t := range c.tiers {
		if !fn(t) {
			ok = false
		}
	}
	return ok
}

func (c *Driver) Set(ctx context.Context, it driver.Item) bool {
	return c.all(func(t driver.Driver) bool { return t.Set(ctx, it) })
}

func (c *Driver) Delete(ctx context.Context, key string) bool {
	return c.all(func(t driver.Driver) bool { return t.Delete(ctx, key) })
}

func (c *Driver) Clear(ctx context.Context) bool {
	return c.all(func(t driver.Driver) bool { return t.Clear(ctx) })
}

func (c *Driver) Purge(ctx context.Context) bool {
	return c.all(func(t driver.Driver) bool { return t.Purge(ctx) })
}

func (c *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	return c.all(func(t driver.Driver) bool { return t.SetMany(ctx, items) })
}

func (c *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	return c.all(func(t driver.Driver) bool { return t.DeleteMany(ctx, keys) })
}

// GetMany asks each tier only for the keys still missing and promotes each
// tier's hits with one batch write per faster tier.
func (c *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	missing := util.UniqSorted(keys)
	out := make(map[string]driver.Entry, len(missing))
	for i, t := range c.tiers {
		if len(missing) == 0 {
			break
		}
		got := t.GetMany(ctx, missing)
		if len(got) == 0 {
			continue
		}
		found := make([]driver.Entry, 0, len(got))
		for k, e := range got {
			e.Key = k
			out[k] = e
			found = append(found, e)
		}
		if i > 0 {
			c.promote(ctx, i, found)
		}
		missing = util.Without(missing, mapKeys(got)...)
	}
	return out
}

func mapKeys(m map[string]driver.Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Close closes every tier and joins their errors.
func (c *Driver) Close(ctx context.Context) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
