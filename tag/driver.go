package tag

import (
	"context"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/log"
)

// Compile-time check that Driver implements driver.Tagger.
var _ driver.Tagger = (*Driver)(nil)

type Options struct {
	Logger log.Logger
	Hooks  hooks.Hooks
	Clock  driver.Clock
}

// Driver keeps an Index in step with the writes it forwards to inner.
type Driver struct {
	inner driver.Driver
	idx   *Index
	clock driver.Clock
}

func New(inner driver.Driver, opts Options) (*Driver, error) {
	if inner == nil {
		return nil, &driver.ConfigError{Component: "tag driver", Reason: "driver is required"}
	}
	return &Driver{
		inner: inner,
		idx:   NewIndex(inner, opts.Logger, opts.Hooks),
		clock: opts.Clock,
	}, nil
}

func (d *Driver) Unwrap() driver.Driver { return d.inner }

// Index exposes the underlying tag index.
func (d *Driver) Index() *Index { return d.idx }

func (d *Driver) Get(ctx context.Context, key string) driver.Entry {
	return d.inner.Get(ctx, key)
}

func (d *Driver) Has(ctx context.Context, key string) bool {
	return d.inner.Has(ctx, key)
}

// Set stores the item and makes its tags the exact tag set of the key.
//
// A failed write may still have landed in part of a composite driver. The key
// is then removed everywhere, or, when that fails too, its new tags are added
// to the index so invalidating them still reaches the stray copy.
func (d *Driver) Set(ctx context.Context, it driver.Item) bool {
	if it.IsDelete() {
		return d.Delete(ctx, it.Key)
	}
	it.Tags = util.UniqSorted(it.Tags)
	if !d.inner.Set(ctx, it) {
		if d.inner.Delete(ctx, it.Key) {
			d.idx.Forget(ctx, it.Key)
		} else if len(it.Tags) > 0 {
			d.idx.Add(ctx, it.Key, it.Tags...)
		}
		return false
	}
	return d.idx.Replace(ctx, it.Key, it.Tags)
}

func (d *Driver) Delete(ctx context.Context, key string) bool {
	if !d.inner.Delete(ctx, key) {
		return false
	}
	return d.idx.Forget(ctx, key)
}

// Clear wipes the inner driver; the index lives there and goes with it.
func (d *Driver) Clear(ctx context.Context) bool { return d.inner.Clear(ctx) }

// Purge purges the inner driver, then prunes orphaned index entries.
func (d *Driver) Purge(ctx context.Context) bool {
	ok := d.inner.Purge(ctx)
	return d.idx.Prune(ctx) && ok
}

func (d *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	return d.inner.GetMany(ctx, keys)
}

func (d *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	norm := make([]driver.Item, len(items))
	for i, it := range items {
		it.Tags = util.UniqSorted(it.Tags)
		norm[i] = it
	}
	ok := d.inner.SetMany(ctx, norm)
	for _, it := range norm {
		if it.IsDelete() {
			ok = d.idx.Forget(ctx, it.Key) && ok
			continue
		}
		ok = d.idx.Replace(ctx, it.Key, it.Tags) && ok
	}
	return ok
}

func (d *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	ok := d.inner.DeleteMany(ctx, keys)
	for _, k := range keys {
		// after a partial failure only keys that are really gone lose their tags
		if !ok && d.inner.Has(ctx, k) {
			continue
		}
		if !d.idx.Forget(ctx, k) {
			ok = false
		}
	}
	return ok
}

// retag rewrites the entry at key with tags, keeping its value and remaining lifetime.
func (d *Driver) retag(ctx context.Context, key string, tags []string) bool {
	e := d.inner.Get(ctx, key)
	if e.Value == nil {
		return false
	}
	ttl := e.Remaining(d.clock.Now())
	if ttl < 0 {
		return false
	}
	return d.inner.Set(ctx, driver.Item{Key: key, Value: e.Value, TTL: ttl, Tags: tags})
}

// Tag adds tags to an existing entry. It fails when key is absent.
func (d *Driver) Tag(ctx context.Context, key string, tags ...string) bool {
	tags = util.UniqSorted(tags)
	if len(tags) == 0 {
		return d.inner.Has(ctx, key)
	}
	merged := util.UniqSorted(append(d.idx.Tags(ctx, key), tags...))
	if !d.retag(ctx, key, merged) {
		return false
	}
	return d.idx.Add(ctx, key, tags...)
}

func (d *Driver) Tags(ctx context.Context, key string) []string {
	return d.idx.Tags(ctx, key)
}

// ClearTags drops every tag of key. The entry itself stays.
func (d *Driver) ClearTags(ctx context.Context, key string) bool {
	tags := d.idx.Tags(ctx, key)
	if len(tags) == 0 {
		return true
	}
	ok := true
	if d.inner.Has(ctx, key) {
		ok = d.retag(ctx, key, nil)
	}
	return d.idx.Remove(ctx, key, tags...) && ok
}

func (d *Driver) InvalidateTags(ctx context.Context, tags ...string) bool {
	return d.idx.Invalidate(ctx, tags...)
}

// Tagged returns the live entries tagged with tag. Associations whose entry
// expired or vanished are dropped on the way.
func (d *Driver) Tagged(ctx context.Context, tag string) map[string]driver.Entry {
	keys := d.idx.Keys(ctx, tag)
	if len(keys) == 0 {
		return map[string]driver.Entry{}
	}
	got := d.inner.GetMany(ctx, keys)
	for _, k := range keys {
		if _, ok := got[k]; !ok {
			d.idx.Remove(ctx, k, tag)
		}
	}
	return got
}

func (d *Driver) Close(ctx context.Context) error { return d.inner.Close(ctx) }
