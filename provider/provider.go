// Package provider defines the byte stores the key-value driver (driver/kv) runs on.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Values written by driver/kv are framed records (value + expiry + tags). External
// code MUST NOT write under keys owned by a cachepool driver; foreign bytes fail
// record validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 => no expiry). May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Removing a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Clear removes every key this provider owns.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Write is one SetMany element.
type Write struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Batch is implemented by providers with real multi-key primitives
// (e.g. MGET / pipelines). driver/kv uses it instead of per-key round trips.
type Batch interface {
	// GetMany returns hits only.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMany(ctx context.Context, writes []Write) error
	DelMany(ctx context.Context, keys []string) error
}
