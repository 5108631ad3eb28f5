package namespace

import (
	"context"
	"fmt"
	"strconv"

	"github.com/unkn0wn-root/cachepool/driver"
)

// InitialVersion is the version of a namespace that has never been invalidated.
const InitialVersion uint64 = 1

// VersionStore persists namespace version counters.
type VersionStore interface {
	// Load returns the current version; a missing counter => InitialVersion.
	Load(ctx context.Context, ns string) (uint64, error)
	// Bump increments the counter and returns the new version.
	Bump(ctx context.Context, ns string) (uint64, error)
	// Reset deletes the counter, returning ns to InitialVersion.
	Reset(ctx context.Context, ns string) error
	// Close releases resources (no-op ok).
	Close(ctx context.Context) error
}

// DriverStore keeps counters as decimal text under driver.NamespaceVersionKey
// in a cache driver, usually the one the namespace wraps.
//
// Bump is read, increment, write. Two processes invalidating the same namespace
// at once can lose one bump; the next invalidation simply bumps again.
type DriverStore struct {
	d driver.Driver
}

var _ VersionStore = (*DriverStore)(nil)

func NewDriverStore(d driver.Driver) *DriverStore { return &DriverStore{d: d} }

// Load treats a missing or unreadable counter as InitialVersion.
func (s *DriverStore) Load(ctx context.Context, ns string) (uint64, error) {
	e := s.d.Get(ctx, driver.NamespaceVersionKey(ns))
	if e.Value == nil {
		return InitialVersion, nil
	}
	v, err := strconv.ParseUint(string(e.Value), 10, 64)
	if err != nil || v == 0 {
		return InitialVersion, nil
	}
	return v, nil
}

func (s *DriverStore) Bump(ctx context.Context, ns string) (uint64, error) {
	cur, err := s.Load(ctx, ns)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	ok := s.d.Set(ctx, driver.Item{
		Key:   driver.NamespaceVersionKey(ns),
		Value: []byte(strconv.FormatUint(next, 10)),
		TTL:   0,
	})
	if !ok {
		return 0, fmt.Errorf("namespace %q: persisting version %d failed", ns, next)
	}
	return next, nil
}

func (s *DriverStore) Reset(ctx context.Context, ns string) error {
	if !s.d.Delete(ctx, driver.NamespaceVersionKey(ns)) {
		return fmt.Errorf("namespace %q: deleting version key failed", ns)
	}
	return nil
}

// Close is a no-op: the driver belongs to whoever wraps it.
func (s *DriverStore) Close(context.Context) error { return nil }
