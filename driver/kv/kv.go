// Package kv implements a driver over a shared key-value byte store
// (Redis, Ristretto, BigCache, ... via provider.Provider).
//
// Each key holds one framed record (value + expiry + tags). The backend TTL is set
// to the record's remaining lifetime; the expiry stored in the record is still
// checked on read, so backends without per-key TTLs behave correctly.
package kv

import (
	"bytes"
	"context"
	"time"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/internal/wire"
	"github.com/unkn0wn-root/cachepool/log"
	pr "github.com/unkn0wn-root/cachepool/provider"
)

// Compile-time check that Driver implements driver.Driver.
var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Provider   pr.Provider // required
	Name       string      // for logs/hooks; "" => "kv"
	DefaultTTL time.Duration
	Logger     log.Logger
	Hooks      hooks.Hooks
	Clock      driver.Clock
}

type Driver struct {
	p          pr.Provider
	batch      pr.Batch // nil when the provider has no bulk primitive
	name       string
	defaultTTL time.Duration
	log        log.Logger
	hooks      hooks.Hooks
	clock      driver.Clock
}

func New(opts Options) (*Driver, error) {
	if opts.Provider == nil {
		return nil, &driver.ConfigError{Component: "kv driver", Reason: "provider is required"}
	}
	d := &Driver{
		p:          opts.Provider,
		name:       util.Coalesce(opts.Name, "kv"),
		defaultTTL: opts.DefaultTTL,
		log:        log.OrNop(opts.Logger),
		hooks:      hooks.OrNop(opts.Hooks),
		clock:      opts.Clock,
	}
	d.batch, _ = opts.Provider.(pr.Batch)
	return d, nil
}

func (d *Driver) Get(ctx context.Context, key string) driver.Entry {
	if key == "" {
		return driver.Entry{}
	}
	raw, ok, err := d.p.Get(ctx, key)
	if err != nil {
		d.log.Warn("kv get failed; treating as miss", log.Fields{"driver": d.name, "key": key, "err": err})
		return driver.Entry{}
	}
	if !ok {
		return driver.Entry{}
	}
	return d.decode(ctx, key, raw)
}

// decode turns raw provider bytes into an entry, self-healing corrupt or expired records.
func (d *Driver) decode(ctx context.Context, key string, raw []byte) driver.Entry {
	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		d.heal(ctx, key, "corrupt")
		return driver.Entry{}
	}
	if rec.Key != key {
		d.heal(ctx, key, "key_mismatch")
		return driver.Entry{}
	}
	e := driver.Entry{
		Key:    key,
		Value:  bytes.Clone(rec.Payload),
		Expiry: rec.Expiry,
		Tags:   rec.Tags,
	}
	if e.Value == nil {
		e.Value = []byte{}
	}
	if !e.IsHit(d.clock.Now()) {
		_ = d.p.Del(ctx, key)
		return driver.Entry{}
	}
	return e
}

func (d *Driver) heal(ctx context.Context, key, reason string) {
	_ = d.p.Del(ctx, key)
	d.log.Debug("kv record dropped", log.Fields{"driver": d.name, "key": key, "reason": reason})
	d.hooks.CorruptEntry(d.name, key, reason)
}

func (d *Driver) Has(ctx context.Context, key string) bool {
	return d.Get(ctx, key).Value != nil
}

// encode frames it. Returns the frame and the backend TTL.
func (d *Driver) encode(it driver.Item) ([]byte, time.Duration, error) {
	now := d.clock.Now()
	exp := driver.ExpiryFor(now, it.TTL, d.defaultTTL)
	b, err := wire.EncodeRecord(wire.Record{Key: it.Key, Expiry: exp, Tags: it.Tags, Payload: it.Value})
	if err != nil {
		return nil, 0, err
	}
	var ttl time.Duration
	if !exp.IsZero() {
		ttl = exp.Sub(now)
	}
	return b, ttl, nil
}

func (d *Driver) Set(ctx context.Context, it driver.Item) bool {
	if it.Key == "" {
		return false
	}
	if it.IsDelete() {
		return d.Delete(ctx, it.Key)
	}
	b, ttl, err := d.encode(it)
	if err != nil {
		d.log.Warn("kv encode failed", log.Fields{"driver": d.name, "key": it.Key, "err": err})
		d.hooks.WriteRejected(d.name, it.Key)
		return false
	}
	ok, err := d.p.Set(ctx, it.Key, b, int64(len(b)), ttl)
	if err != nil || !ok {
		d.log.Warn("kv set rejected", log.Fields{"driver": d.name, "key": it.Key, "err": err})
		d.hooks.WriteRejected(d.name, it.Key)
		return false
	}
	return true
}

func (d *Driver) Delete(ctx context.Context, key string) bool {
	if err := d.p.Del(ctx, key); err != nil {
		d.log.Warn("kv delete failed", log.Fields{"driver": d.name, "key": key, "err": err})
		return false
	}
	return true
}

func (d *Driver) Clear(ctx context.Context) bool {
	if err := d.p.Clear(ctx); err != nil {
		d.log.Error("kv clear failed", log.Fields{"driver": d.name, "err": err})
		return false
	}
	return true
}

// Purge is a no-op: backends expire keys themselves and expired records are
// dropped on read.
func (d *Driver) Purge(context.Context) bool { return true }

func (d *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	if d.batch == nil {
		return driver.SequentialGetMany(ctx, d, keys)
	}
	out := make(map[string]driver.Entry, len(keys))
	uniq := util.UniqSorted(keys)
	raws, err := d.batch.GetMany(ctx, uniq)
	if err != nil {
		d.log.Warn("kv batch get failed; treating as misses", log.Fields{"driver": d.name, "count": len(uniq), "err": err})
		return out
	}
	for k, raw := range raws {
		if e := d.decode(ctx, k, raw); e.Value != nil {
			out[k] = e
		}
	}
	return out
}

func (d *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	if d.batch == nil {
		return driver.SequentialSetMany(ctx, d, items)
	}
	ok := true
	writes := make([]pr.Write, 0, len(items))
	var dels []string
	for _, it := range items {
		if it.Key == "" {
			ok = false
			continue
		}
		if it.IsDelete() {
			dels = append(dels, it.Key)
			continue
		}
		b, ttl, err := d.encode(it)
		if err != nil {
			d.hooks.WriteRejected(d.name, it.Key)
			ok = false
			continue
		}
		writes = append(writes, pr.Write{Key: it.Key, Value: b, TTL: ttl})
	}
	if err := d.batch.SetMany(ctx, writes); err != nil {
		d.log.Warn("kv batch set failed", log.Fields{"driver": d.name, "count": len(writes), "err": err})
		ok = false
	}
	if len(dels) > 0 && !d.DeleteMany(ctx, dels) {
		ok = false
	}
	return ok
}

func (d *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	if d.batch == nil {
		return driver.SequentialDeleteMany(ctx, d, keys)
	}
	if err := d.batch.DelMany(ctx, keys); err != nil {
		d.log.Warn("kv batch delete failed", log.Fields{"driver": d.name, "count": len(keys), "err": err})
		return false
	}
	return true
}

func (d *Driver) Close(ctx context.Context) error {
	return d.p.Close(ctx)
}
