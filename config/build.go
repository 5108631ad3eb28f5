package config

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/cachepool/chain"
	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/driver/file"
	"github.com/unkn0wn-root/cachepool/driver/kv"
	"github.com/unkn0wn-root/cachepool/driver/memory"
	"github.com/unkn0wn-root/cachepool/driver/sqlite"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/log"
	"github.com/unkn0wn-root/cachepool/namespace"
	"github.com/unkn0wn-root/cachepool/provider"
	"github.com/unkn0wn-root/cachepool/provider/bigcache"
	rp "github.com/unkn0wn-root/cachepool/provider/redis"
	"github.com/unkn0wn-root/cachepool/provider/ristretto"
)

// Build opens every configured tier. A single tier is returned as is; several
// are composed into a chain, fastest first. Tiers opened before a failure are
// closed again.
func (c *Config) Build(ctx context.Context, l log.Logger, h hooks.Hooks) (driver.Driver, error) {
	if len(c.Drivers) == 0 {
		return nil, &driver.ConfigError{Component: "config", Reason: "no drivers configured"}
	}
	tiers := make([]driver.Driver, 0, len(c.Drivers))
	closeAll := func() {
		for _, t := range tiers {
			_ = t.Close(ctx)
		}
	}
	for i, dc := range c.Drivers {
		d, err := c.buildDriver(ctx, dc, l, h)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("drivers[%d] (%s): %w", i, dc.Type, err)
		}
		tiers = append(tiers, d)
	}
	if len(tiers) == 1 {
		return tiers[0], nil
	}
	ch, err := chain.New(chain.Options{Logger: l, Hooks: h}, tiers...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return ch, nil
}

func (c *Config) buildDriver(ctx context.Context, dc DriverConfig, l log.Logger, h hooks.Hooks) (driver.Driver, error) {
	switch dc.Type {
	case Memory:
		return memory.New(memory.Options{Capacity: dc.Capacity, DefaultTTL: c.DefaultTTL, Logger: l, Hooks: h})
	case File:
		return file.New(file.Options{Dir: dc.Dir, Compress: dc.Compress, DefaultTTL: c.DefaultTTL, Logger: l, Hooks: h})
	case SQLite:
		return sqlite.Open(ctx, dc.Path, sqlite.Options{Table: dc.Table, DefaultTTL: c.DefaultTTL, Logger: l, Hooks: h})
	case Redis:
		client := newRedisClient(dc)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		p, err := rp.New(rp.Config{Client: client, Prefix: dc.Prefix, CloseClient: true})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return c.kv(p, Redis, l, h)
	case Ristretto:
		rcfg := ristretto.ForBytes(dc.MaxCost, dc.Entries)
		rcfg.Hooks = h
		p, err := ristretto.New(rcfg)
		if err != nil {
			return nil, err
		}
		return c.kv(p, Ristretto, l, h)
	case BigCache:
		p, err := bigcache.New(ctx, bigcache.Config{
			LifeWindow:         dc.LifeWindow,
			MaxEntriesInWindow: int(dc.Entries),
			HardMaxCacheSizeMB: dc.MaxSizeMB,
			Hooks:              h,
		})
		if err != nil {
			return nil, err
		}
		return c.kv(p, BigCache, l, h)
	}
	return nil, fmt.Errorf("unsupported driver type %q", dc.Type)
}

func (c *Config) kv(p provider.Provider, name string, l log.Logger, h hooks.Hooks) (driver.Driver, error) {
	return kv.New(kv.Options{Provider: p, Name: name, DefaultTTL: c.DefaultTTL, Logger: l, Hooks: h})
}

// VersionStore returns the configured namespace version store, or nil to keep
// versions in the driver stack.
func (c *Config) VersionStore(ctx context.Context) (namespace.VersionStore, error) {
	if c.Versions.Type != Redis {
		return nil, nil
	}
	client := newRedisClient(c.Versions)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("versions: redis ping: %w", err)
	}
	return namespace.NewOwnedRedisStore(client, c.Versions.Prefix), nil
}

func newRedisClient(dc DriverConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: dc.Addr, Password: dc.Password, DB: dc.DB})
}

// ZapLogger builds the zap logger described by Log.
func (c *Config) ZapLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Log.Level != "" {
		lv, err := zapcore.ParseLevel(c.Log.Level)
		if err != nil {
			return nil, err
		}
		level = lv
	}
	zc := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
