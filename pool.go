package cachepool

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	c "github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/log"
	"github.com/unkn0wn-root/cachepool/namespace"
	"github.com/unkn0wn-root/cachepool/tag"
)

const name = "pool"

type pool[V any] struct {
	codec c.Codec[V]
	log   log.Logger
	hooks hooks.Hooks

	enabled bool

	ns     *namespace.Driver
	tagger *tag.Driver   // nil unless tagging is on
	top    driver.Driver // tagger, or ns

	closeOnce sync.Once
	closeErr  error
}

func newPool[V any](opts Options[V]) (*pool[V], error) {
	if opts.Driver == nil {
		return nil, &ConfigError{Component: "pool", Reason: "driver is required"}
	}
	if opts.Codec == nil {
		return nil, &ConfigError{Component: "pool", Reason: "codec is required"}
	}
	if w := wrapped(opts.Driver); w != "" {
		return nil, &ConfigError{Component: "pool", Reason: fmt.Sprintf("driver already carries a %s layer; pass the bare driver", w)}
	}

	p := &pool[V]{
		codec:   opts.Codec,
		log:     log.OrNop(opts.Logger),
		hooks:   hooks.OrNop(opts.Hooks),
		enabled: !opts.Disabled,
	}
	ns, err := namespace.New(opts.Driver, namespace.Options{
		Namespace: opts.Namespace,
		Store:     opts.VersionStore,
		Logger:    p.log,
		Hooks:     p.hooks,
	})
	if err != nil {
		return nil, err
	}
	p.ns, p.top = ns, ns
	if opts.Tagging {
		tg, err := tag.New(ns, tag.Options{Logger: p.log, Hooks: p.hooks, Clock: opts.Clock})
		if err != nil {
			return nil, err
		}
		p.tagger, p.top = tg, tg
	}
	return p, nil
}

// wrapped names the pool-level layer d (or any chain member) already carries.
func wrapped(d driver.Driver) string {
	switch d.(type) {
	case *namespace.Driver:
		return "namespace"
	case *tag.Driver:
		return "tag"
	}
	if comp, ok := d.(driver.Composite); ok {
		for _, m := range comp.Members() {
			if w := wrapped(m); w != "" {
				return w
			}
		}
	}
	return ""
}

// isNil reports whether v is a nil pointer, map, slice, func, chan or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func (p *pool[V]) Enabled() bool { return p.enabled }

func (p *pool[V]) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.top.Close(ctx)
	})
	return p.closeErr
}

// decode turns a stored entry into V, deleting entries whose payload no
// longer decodes.
func (p *pool[V]) decode(ctx context.Context, key string, e driver.Entry) (V, bool) {
	v, err := p.codec.Decode(e.Value)
	if err != nil {
		var zero V
		p.top.Delete(ctx, key)
		p.log.Debug("dropped undecodable entry", log.Fields{"key": key, "err": err})
		p.hooks.CorruptEntry(name, key, "value_decode")
		return zero, false
	}
	return v, true
}

// encode returns the item for value, or a delete item for nil values.
func (p *pool[V]) encode(key string, value V, ttl time.Duration, tags []string) (driver.Item, error) {
	it := driver.Item{Key: key, TTL: ttl, Tags: tags}
	if isNil(value) {
		return it, nil // Value == nil => delete
	}
	b, err := p.codec.Encode(value)
	if err != nil {
		return it, err
	}
	if b == nil {
		b = []byte{}
	}
	it.Value = b
	return it, nil
}

func (p *pool[V]) checkTags(tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if p.tagger == nil {
		return ErrTaggingDisabled
	}
	return driver.ValidateTags(tags)
}

func (p *pool[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := driver.ValidateKey(key); err != nil {
		return zero, false, err
	}
	if !p.enabled {
		return zero, false, nil
	}
	e := p.top.Get(ctx, key)
	if e.Value == nil {
		return zero, false, nil
	}
	v, ok := p.decode(ctx, key, e)
	return v, ok, nil
}

func (p *pool[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := driver.ValidateKey(key); err != nil {
		return false, err
	}
	if !p.enabled {
		return false, nil
	}
	return p.top.Has(ctx, key), nil
}

func (p *pool[V]) Set(ctx context.Context, key string, value V, ttl time.Duration, tags ...string) (bool, error) {
	if err := driver.ValidateKey(key); err != nil {
		return false, err
	}
	if err := p.checkTags(tags); err != nil {
		return false, err
	}
	if !p.enabled {
		return true, nil
	}
	it, err := p.encode(key, value, ttl, tags)
	if err != nil {
		p.log.Warn("encode failed; value not cached", log.Fields{"key": key, "err": err})
		return false, nil
	}
	return p.top.Set(ctx, it), nil
}

func (p *pool[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := driver.ValidateKey(key); err != nil {
		return false, err
	}
	if !p.enabled {
		return true, nil
	}
	return p.top.Delete(ctx, key), nil
}

func (p *pool[V]) GetMultiple(ctx context.Context, keys []string) (map[string]V, error) {
	if err := driver.ValidateKeys(keys); err != nil {
		return nil, err
	}
	out := make(map[string]V, len(keys))
	if !p.enabled || len(keys) == 0 {
		return out, nil
	}
	for k, e := range p.top.GetMany(ctx, keys) {
		if v, ok := p.decode(ctx, k, e); ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMultiple writes every item with the same ttl and tags. Items are written
// in key order.
func (p *pool[V]) SetMultiple(ctx context.Context, items map[string]V, ttl time.Duration, tags ...string) (bool, error) {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := driver.ValidateKeys(keys); err != nil {
		return false, err
	}
	if err := p.checkTags(tags); err != nil {
		return false, err
	}
	if !p.enabled || len(keys) == 0 {
		return true, nil
	}
	ok := true
	batch := make([]driver.Item, 0, len(keys))
	for _, k := range keys {
		it, err := p.encode(k, items[k], ttl, tags)
		if err != nil {
			p.log.Warn("encode failed; value not cached", log.Fields{"key": k, "err": err})
			ok = false
			continue
		}
		batch = append(batch, it)
	}
	if len(batch) > 0 && !p.top.SetMany(ctx, batch) {
		ok = false
	}
	return ok, nil
}

func (p *pool[V]) DeleteMultiple(ctx context.Context, keys []string) (bool, error) {
	if err := driver.ValidateKeys(keys); err != nil {
		return false, err
	}
	if !p.enabled || len(keys) == 0 {
		return true, nil
	}
	return p.top.DeleteMany(ctx, keys), nil
}

func (p *pool[V]) Clear(ctx context.Context) bool {
	if !p.enabled {
		return true
	}
	return p.top.Clear(ctx)
}

func (p *pool[V]) Invalidate(ctx context.Context) bool {
	if !p.enabled {
		return true
	}
	return p.ns.Invalidate(ctx)
}

func (p *pool[V]) Purge(ctx context.Context) bool {
	if !p.enabled {
		return true
	}
	return p.top.Purge(ctx)
}

func (p *pool[V]) Tag(ctx context.Context, key string, tags ...string) (bool, error) {
	if p.tagger == nil {
		return false, ErrTaggingDisabled
	}
	if err := driver.ValidateKey(key); err != nil {
		return false, err
	}
	if err := driver.ValidateTags(tags); err != nil {
		return false, err
	}
	if !p.enabled {
		return false, nil
	}
	return p.tagger.Tag(ctx, key, tags...), nil
}

func (p *pool[V]) Tags(ctx context.Context, key string) ([]string, error) {
	if p.tagger == nil {
		return nil, ErrTaggingDisabled
	}
	if err := driver.ValidateKey(key); err != nil {
		return nil, err
	}
	if !p.enabled {
		return nil, nil
	}
	return p.tagger.Tags(ctx, key), nil
}

func (p *pool[V]) ClearTags(ctx context.Context, key string) (bool, error) {
	if p.tagger == nil {
		return false, ErrTaggingDisabled
	}
	if err := driver.ValidateKey(key); err != nil {
		return false, err
	}
	if !p.enabled {
		return true, nil
	}
	return p.tagger.ClearTags(ctx, key), nil
}

func (p *pool[V]) InvalidateTags(ctx context.Context, tags ...string) (bool, error) {
	if p.tagger == nil {
		return false, ErrTaggingDisabled
	}
	if err := driver.ValidateTags(tags); err != nil {
		return false, err
	}
	if !p.enabled {
		return true, nil
	}
	return p.tagger.InvalidateTags(ctx, tags...), nil
}

func (p *pool[V]) Tagged(ctx context.Context, t string) (map[string]V, error) {
	if p.tagger == nil {
		return nil, ErrTaggingDisabled
	}
	if err := driver.ValidateTag(t); err != nil {
		return nil, err
	}
	out := make(map[string]V)
	if !p.enabled {
		return out, nil
	}
	for k, e := range p.tagger.Tagged(ctx, t) {
		if v, ok := p.decode(ctx, k, e); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (p *pool[V]) Namespace() string { return p.ns.Namespace() }

func (p *pool[V]) SetNamespace(ns string) error { return p.ns.SetNamespace(ns) }
