// Package cachepool is a typed cache front over pluggable storage drivers.
//
// Components:
//   - Driver: byte store with TTL (memory, kv over Redis/Ristretto/BigCache,
//     file, SQLite) or a chain of them with read promotion.
//   - Codec[V]: (de)serializes V <-> []byte.
//   - Namespace: every key is rewritten to a versioned physical key so a whole
//     namespace can be dropped by bumping one counter.
//   - Tags: an index stored in the same driver maps tags to keys for group
//     invalidation.
//
// Keys:
//
//	<key>                 - no namespace
//	<ns>:<version>:<key>  - namespaced entries (version starts at 1)
//	NAMESPACE_VERSION[ns], TAG_KEYS[tag], KEY_TAGS[key],
//	TAG_ORPHANS, KEY_ORPHANS - bookkeeping, rejected as user keys
//
// Typical use:
//
//	mem, _ := memory.New(memory.Options{Capacity: 10_000})
//	users, _ := cachepool.New(cachepool.Options[User]{
//		Driver:    mem,
//		Codec:     codec.JSON[User]{},
//		Namespace: "users",
//		Tagging:   true,
//	})
//	_, _ = users.Set(ctx, "user.1", u, time.Minute, "team.7")
//	_, _ = users.InvalidateTags(ctx, "team.7")
package cachepool
