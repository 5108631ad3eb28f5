package namespace

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cachepool/driver"
)

// RedisStore shares namespace versions across processes with atomic bumps.
// Counters never expire: a vanished counter would fall back to InitialVersion
// and make entries written before the first invalidation reachable again.
type RedisStore struct {
	rdb         redis.UniversalClient
	prefix      string
	closeClient bool
}

var _ VersionStore = (*RedisStore)(nil)

// NewRedisStore creates a store that keeps counters under prefix+NAMESPACE_VERSION[ns].
// The client stays owned by the caller.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: client, prefix: prefix}
}

// NewOwnedRedisStore is NewRedisStore whose Close also closes client.
func NewOwnedRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: client, prefix: prefix, closeClient: true}
}

func (s *RedisStore) key(ns string) string { return s.prefix + driver.NamespaceVersionKey(ns) }

func (s *RedisStore) Load(ctx context.Context, ns string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(ns)).Result()
	if err == redis.Nil {
		return InitialVersion, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis namespace version parse: %w", err)
	}
	return v, nil
}

// Bump seeds a missing counter with InitialVersion and increments it.
// SETNX + INCR are pipelined in one round-trip; INCR is atomic on the server.
func (s *RedisStore) Bump(ctx context.Context, ns string) (uint64, error) {
	k := s.key(ns)
	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, k, InitialVersion, 0)
		incr = p.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *RedisStore) Reset(ctx context.Context, ns string) error {
	return s.rdb.Del(ctx, s.key(ns)).Err()
}

// Close closes the client only for stores built with NewOwnedRedisStore.
func (s *RedisStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
