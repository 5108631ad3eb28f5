package cachepool

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/cachepool/codec"
	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/namespace"
)

// DefaultTTL asks the driver to apply its own default lifetime.
// A TTL of 0 never expires; a negative TTL deletes the key.
const DefaultTTL = driver.DefaultTTL

// Pool is the typed, validated front of a cache driver.
// V is the caller's value type; serialization is handled by a Codec[V].
//
// Arguments are validated before any I/O and rejected with a *ValidationError.
// Storage failures never surface as errors: writes report false and reads miss.
type Pool[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Single
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	Has(ctx context.Context, key string) (bool, error)
	// Set stores value under key. A nil value (nil pointer, slice, map or
	// interface) deletes key instead. Tags require Options.Tagging.
	Set(ctx context.Context, key string, value V, ttl time.Duration, tags ...string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)

	// Multiple (hits only; order-agnostic)
	GetMultiple(ctx context.Context, keys []string) (map[string]V, error)
	SetMultiple(ctx context.Context, items map[string]V, ttl time.Duration, tags ...string) (bool, error)
	DeleteMultiple(ctx context.Context, keys []string) (bool, error)

	// Clear wipes everything the driver can reach, other namespaces included.
	Clear(ctx context.Context) bool
	// Invalidate logically clears the current namespace by bumping its version.
	Invalidate(ctx context.Context) bool
	// Purge removes expired records and prunes the tag index.
	Purge(ctx context.Context) bool

	// Tags (ErrTaggingDisabled unless Options.Tagging)
	Tag(ctx context.Context, key string, tags ...string) (bool, error)
	Tags(ctx context.Context, key string) ([]string, error)
	ClearTags(ctx context.Context, key string) (bool, error)
	InvalidateTags(ctx context.Context, tags ...string) (bool, error)
	Tagged(ctx context.Context, tag string) (map[string]V, error)

	Namespace() string
	SetNamespace(ns string) error
}

// Options configure a Pool. Only Driver and Codec are required.
type Options[V any] struct {
	// Required
	Driver driver.Driver // a concrete driver or a chain; the pool takes ownership
	Codec  c.Codec[V]

	Namespace    string                 // "" => no namespacing (Invalidate is unavailable)
	VersionStore namespace.VersionStore // nil => versions kept in Driver
	Tagging      bool                   // enable the tag index and tag operations
	Disabled     bool                   // zero-entry cache: reads miss, writes are no-ops

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
	Clock  driver.Clock
}

func New[V any](opts Options[V]) (Pool[V], error) {
	return newPool[V](opts)
}
