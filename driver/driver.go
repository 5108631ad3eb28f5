// Package driver defines the storage contract every cachepool backend implements.
//
// Keys reaching a Driver are physical: any namespace/version rewriting has already
// happened above it, so drivers are unaware of namespaces.
//
// Failure discipline: ordinary storage failures (disk full, backend unavailable,
// undecodable records) never surface as errors. Mutations return false and reads
// degrade to misses, so a broken cache behaves like an empty one.
package driver

import (
	"context"
	"math"
	"time"
)

// DefaultTTL asks the driver to apply its configured default lifetime.
// It is a sentinel; TTL == 0 means "never expires" and TTL < 0 means "delete".
const DefaultTTL time.Duration = math.MaxInt64

// Entry is a stored cache record as seen by readers.
// A zero Entry is a miss.
type Entry struct {
	Key    string
	Value  []byte    // nil => absent; never a legitimately stored value
	Expiry time.Time // zero => never expires
	Tags   []string
}

// IsHit reports whether the entry carries a value that has not expired at now.
func (e Entry) IsHit(now time.Time) bool {
	return e.Value != nil && (e.Expiry.IsZero() || e.Expiry.After(now))
}

// Remaining returns the lifetime left at now. 0 means the entry never expires;
// a negative value means it already expired.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.Expiry.IsZero() {
		return 0
	}
	if d := e.Expiry.Sub(now); d > 0 {
		return d
	}
	return -1
}

// Item is a write request.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration // DefaultTTL, 0 (never), >0, or <0 (delete)
	Tags  []string
}

// IsDelete reports whether writing it must be translated to a delete.
func (it Item) IsDelete() bool {
	return it.Value == nil || (it.TTL < 0)
}

// ExpiryFor resolves an Item TTL to an absolute expiry at now.
// def is the driver's default lifetime (0 = never).
func ExpiryFor(now time.Time, ttl, def time.Duration) time.Time {
	if ttl == DefaultTTL {
		ttl = def
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Driver is the contract every backend implements.
type Driver interface {
	// Get returns a zero Entry on miss. It never fails for a miss.
	Get(ctx context.Context, key string) Entry

	// Has is an existence check. It is not a race-free guard: the entry
	// may expire or be deleted between Has and a following Get.
	Has(ctx context.Context, key string) bool

	// Set stores it, or deletes it.Key when it.IsDelete().
	// Returns false on any storage failure.
	Set(ctx context.Context, it Item) bool

	// Delete is idempotent: deleting an absent key succeeds.
	Delete(ctx context.Context, key string) bool

	// Clear wipes every entry the driver owns.
	Clear(ctx context.Context) bool

	// Purge removes physically stored but expired entries (best effort).
	Purge(ctx context.Context) bool

	// GetMany returns hits only, keyed by the requested key.
	GetMany(ctx context.Context, keys []string) map[string]Entry
	SetMany(ctx context.Context, items []Item) bool
	DeleteMany(ctx context.Context, keys []string) bool

	Close(ctx context.Context) error
}

// Tagger is the tagged variant of a Driver.
type Tagger interface {
	Driver

	// Tag associates key with tags.
	Tag(ctx context.Context, key string, tags ...string) bool
	// Tags returns the tags currently associated with key.
	Tags(ctx context.Context, key string) []string
	// ClearTags drops every association of key.
	ClearTags(ctx context.Context, key string) bool
	// InvalidateTags deletes every key tagged with any of tags.
	InvalidateTags(ctx context.Context, tags ...string) bool
	// Tagged returns the live entries currently tagged with tag.
	Tagged(ctx context.Context, tag string) map[string]Entry
}

// Wrapper is implemented by drivers that decorate another driver.
type Wrapper interface {
	Unwrap() Driver
}

// Composite is implemented by drivers that fan out over members (chains).
type Composite interface {
	Members() []Driver
}

// Clock returns the current time. Drivers accept one for tests; nil => time.Now.
type Clock func() time.Time

// Now returns c(), or time.Now() when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
