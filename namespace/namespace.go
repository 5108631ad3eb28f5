// Package namespace partitions a driver's key space with a version counter.
//
// A logical key k under namespace ns is stored as "ns:<version>:k". Bumping the
// version makes every earlier physical key unreachable in O(1); the stale bytes
// stay in the backend until it purges or evicts them. The empty namespace
// disables rewriting.
package namespace

import (
	"context"
	"strconv"
	"sync"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/log"
)

// Compile-time check that Driver implements driver.Driver.
var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Namespace string
	// Store persists version counters. nil => NewDriverStore(inner).
	Store  VersionStore
	Logger log.Logger
	Hooks  hooks.Hooks
}

type Driver struct {
	inner driver.Driver
	store VersionStore
	log   log.Logger
	hooks hooks.Hooks

	mu      sync.Mutex
	ns      string
	version uint64 // 0 => not loaded yet
}

func New(inner driver.Driver, opts Options) (*Driver, error) {
	if inner == nil {
		return nil, &driver.ConfigError{Component: "namespace", Reason: "driver is required"}
	}
	if err := driver.ValidateNamespace(opts.Namespace); err != nil {
		return nil, err
	}
	store := opts.Store
	if store == nil {
		store = NewDriverStore(inner)
	}
	return &Driver{
		inner: inner,
		store: store,
		ns:    opts.Namespace,
		log:   log.OrNop(opts.Logger),
		hooks: hooks.OrNop(opts.Hooks),
	}, nil
}

func (d *Driver) Unwrap() driver.Driver { return d.inner }

func (d *Driver) Namespace() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ns
}

// SetNamespace switches to ns and forgets the cached version. The previous
// namespace's counter is left alone, so switching back does not resurrect
// invalidated entries.
func (d *Driver) SetNamespace(ns string) error {
	if err := driver.ValidateNamespace(ns); err != nil {
		return err
	}
	d.mu.Lock()
	d.ns, d.version = ns, 0
	d.mu.Unlock()
	return nil
}

// state returns the namespace and its version, loading the version once.
func (d *Driver) state(ctx context.Context) (string, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ns == "" {
		return "", 0, true
	}
	if d.version == 0 {
		v, err := d.store.Load(ctx, d.ns)
		if err != nil {
			d.log.Warn("namespace version load failed", log.Fields{"namespace": d.ns, "err": err})
			return d.ns, 0, false
		}
		d.version = v
	}
	return d.ns, d.version, true
}

// Version returns the current version of the namespace (0 when none is set).
func (d *Driver) Version(ctx context.Context) (uint64, bool) {
	_, v, ok := d.state(ctx)
	return v, ok
}

func physical(ns string, v uint64, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + strconv.FormatUint(v, 10) + ":" + key
}

// Key returns the physical key for key. ok is false when the version could
// not be loaded.
func (d *Driver) Key(ctx context.Context, key string) (string, bool) {
	ns, v, ok := d.state(ctx)
	if !ok {
		return "", false
	}
	return physical(ns, v, key), true
}

// Invalidate bumps the version, orphaning every key written so far.
// It fails for the empty namespace and when the new version cannot be persisted.
func (d *Driver) Invalidate(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ns == "" {
		return false
	}
	v, err := d.store.Bump(ctx, d.ns)
	if err != nil {
		d.log.Error("namespace invalidation failed", log.Fields{"namespace": d.ns, "err": err})
		d.hooks.NamespaceBumpError(d.ns, err)
		return false
	}
	d.version = v
	d.log.Debug("namespace invalidated", log.Fields{"namespace": d.ns, "version": v})
	d.hooks.NamespaceInvalidated(d.ns, v)
	return true
}

// Reset forgets the cached version and deletes the persisted counter.
// SetNamespace keeps the old counter; callers that want it dropped when the
// namespace changes call Reset before SetNamespace. The namespace then starts
// over at InitialVersion.
func (d *Driver) Reset(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = 0
	if d.ns == "" {
		return true
	}
	if err := d.store.Reset(ctx, d.ns); err != nil {
		d.log.Warn("namespace reset failed", log.Fields{"namespace": d.ns, "err": err})
		return false
	}
	return true
}

func (d *Driver) Get(ctx context.Context, key string) driver.Entry {
	pk, ok := d.Key(ctx, key)
	if !ok {
		return driver.Entry{}
	}
	e := d.inner.Get(ctx, pk)
	if e.Value != nil {
		e.Key = key
	}
	return e
}

func (d *Driver) Has(ctx context.Context, key string) bool {
	pk, ok := d.Key(ctx, key)
	return ok && d.inner.Has(ctx, pk)
}

func (d *Driver) Set(ctx context.Context, it driver.Item) bool {
	pk, ok := d.Key(ctx, it.Key)
	if !ok {
		return false
	}
	it.Key = pk
	return d.inner.Set(ctx, it)
}

func (d *Driver) Delete(ctx context.Context, key string) bool {
	pk, ok := d.Key(ctx, key)
	return ok && d.inner.Delete(ctx, pk)
}

// Clear wipes the inner driver, counters included, and forgets the cached version.
func (d *Driver) Clear(ctx context.Context) bool {
	d.mu.Lock()
	d.version = 0
	d.mu.Unlock()
	return d.inner.Clear(ctx)
}

func (d *Driver) Purge(ctx context.Context) bool { return d.inner.Purge(ctx) }

func (d *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	ns, v, ok := d.state(ctx)
	if !ok {
		return map[string]driver.Entry{}
	}
	if ns == "" {
		return d.inner.GetMany(ctx, keys)
	}
	logical := make(map[string]string, len(keys))
	pks := make([]string, 0, len(keys))
	for _, k := range keys {
		pk := physical(ns, v, k)
		if _, dup := logical[pk]; !dup {
			logical[pk] = k
			pks = append(pks, pk)
		}
	}
	got := d.inner.GetMany(ctx, pks)
	out := make(map[string]driver.Entry, len(got))
	for pk, e := range got {
		k := logical[pk]
		e.Key = k
		out[k] = e
	}
	return out
}

func (d *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	ns, v, ok := d.state(ctx)
	if !ok {
		return false
	}
	rewritten := make([]driver.Item, len(items))
	for i, it := range items {
		it.Key = physical(ns, v, it.Key)
		rewritten[i] = it
	}
	return d.inner.SetMany(ctx, rewritten)
}

func (d *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	ns, v, ok := d.state(ctx)
	if !ok {
		return false
	}
	pks := make([]string, len(keys))
	for i, k := range keys {
		pks[i] = physical(ns, v, k)
	}
	return d.inner.DeleteMany(ctx, pks)
}

// Close closes the version store and the inner driver.
func (d *Driver) Close(ctx context.Context) error {
	serr := d.store.Close(ctx)
	if err := d.inner.Close(ctx); err != nil {
		return err
	}
	return serr
}
