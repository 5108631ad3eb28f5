// Package ristretto backs driver/kv with an in-process dgraph-io/ristretto cache.
package ristretto

import (
	"context"
	"errors"
	"strconv"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/cachepool/hooks"
	pr "github.com/unkn0wn-root/cachepool/provider"
)

const name = "ristretto"

var _ pr.Provider = (*Provider)(nil)

type Provider struct {
	c *rc.Cache
}

type Config struct {
	NumCounters int64 // ~10x the expected number of entries
	MaxCost     int64 // total budget in bytes; cost is the record size
	BufferItems int64 // 64 is a good default
	Metrics     bool
	// Hooks receives Evicted for entries ristretto drops under pressure. Ristretto
	// only keeps key hashes, so the reported key is the hash in decimal.
	Hooks hooks.Hooks
}

// ForBytes returns a Config budgeting maxBytes for roughly entries records.
func ForBytes(maxBytes, entries int64) Config {
	if entries <= 0 {
		entries = maxBytes / 256
	}
	return Config{NumCounters: 10 * entries, MaxCost: maxBytes, BufferItems: 64}
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: NumCounters, MaxCost and BufferItems must be positive")
	}
	h := hooks.OrNop(cfg.Hooks)
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict: func(it *rc.Item) {
			h.Evicted(name, strconv.FormatUint(it.Key, 10))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Del(key) // foreign value shape
		return nil, false, nil
	}
	return b, true, nil
}

// Set admits the value and waits for the write buffers to drain, so the next Get
// observes it. Ristretto may still refuse admission (ok=false). A cost <= 0 is
// replaced by the value size.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if cost <= 0 {
		cost = int64(len(value)) + 1
	}
	ok := p.c.SetWithTTL(key, value, cost, ttl)
	p.c.Wait()
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Clear(_ context.Context) error {
	p.c.Clear()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters; nil unless Config.Metrics.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
