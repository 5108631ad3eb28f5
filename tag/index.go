// Package tag maintains a key/tag many-to-many relation on top of a driver and
// exposes it as a driver.Tagger.
//
// The relation is stored in the driver itself, under reserved keys:
//
//	TAG_KEYS[<tag>]  sorted set of keys carrying tag
//	KEY_TAGS[<key>]  sorted set of tags on key
//	TAG_ORPHANS      tags whose key set became empty
//	KEY_ORPHANS      keys whose tag set became empty
//
// Sets are msgpack-encoded string slices written without expiry. When the
// driver is namespaced, the index is namespaced too, so bumping the namespace
// version orphans the index along with the data.
package tag

import (
	"context"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/log"
)

const name = "tag-index"

// Index serializes its own read-modify-write cycles with a mutex. Two
// processes updating the same sets concurrently can still lose an update.
type Index struct {
	d     driver.Driver
	log   log.Logger
	hooks hooks.Hooks
	mu    sync.Mutex
}

func NewIndex(d driver.Driver, l log.Logger, h hooks.Hooks) *Index {
	return &Index{d: d, log: log.OrNop(l), hooks: hooks.OrNop(h)}
}

func (x *Index) read(ctx context.Context, key string) []string {
	e := x.d.Get(ctx, key)
	if len(e.Value) == 0 {
		return nil
	}
	var set []string
	if err := msgpack.Unmarshal(e.Value, &set); err != nil {
		x.log.Warn("tag index entry unreadable; dropping", log.Fields{"key": key, "err": err})
		x.hooks.CorruptEntry(name, key, "corrupt")
		x.d.Delete(ctx, key)
		return nil
	}
	return set
}

func (x *Index) write(ctx context.Context, key string, set []string) bool {
	b, err := msgpack.Marshal(set)
	if err != nil {
		x.log.Warn("tag index encode failed", log.Fields{"key": key, "err": err})
		return false
	}
	return x.d.Set(ctx, driver.Item{Key: key, Value: b, TTL: 0})
}

// addTo adds members to the set at key, writing only on change.
func (x *Index) addTo(ctx context.Context, key string, members ...string) bool {
	cur := x.read(ctx, key)
	next := util.UniqSorted(append(append([]string(nil), cur...), members...))
	if len(next) == len(cur) {
		return true
	}
	return x.write(ctx, key, next)
}

// removeFrom removes members from the set at key. It returns the remaining
// size, or -1 when the write failed.
func (x *Index) removeFrom(ctx context.Context, key string, members ...string) int {
	cur := x.read(ctx, key)
	next := util.Without(cur, members...)
	if len(next) == len(cur) {
		return len(next)
	}
	if !x.write(ctx, key, next) {
		return -1
	}
	return len(next)
}

// Keys returns the keys carrying tag, sorted.
func (x *Index) Keys(ctx context.Context, tag string) []string {
	return x.read(ctx, driver.TagKeysKey(tag))
}

// Tags returns the tags on key, sorted.
func (x *Index) Tags(ctx context.Context, key string) []string {
	return x.read(ctx, driver.KeyTagsKey(key))
}

// Add associates key with every tag. It is idempotent and takes key and tags
// out of the orphan sets.
func (x *Index) Add(ctx context.Context, key string, tags ...string) bool {
	tags = util.UniqSorted(tags)
	if len(tags) == 0 {
		return true
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.add(ctx, key, tags)
}

func (x *Index) add(ctx context.Context, key string, tags []string) bool {
	ok := x.addTo(ctx, driver.KeyTagsKey(key), tags...)
	for _, t := range tags {
		if !x.addTo(ctx, driver.TagKeysKey(t), key) {
			ok = false
		}
	}
	if x.removeFrom(ctx, driver.KeyOrphansKey, key) < 0 {
		ok = false
	}
	if x.removeFrom(ctx, driver.TagOrphansKey, tags...) < 0 {
		ok = false
	}
	return ok
}

// Remove drops the association of key with every tag. A tag left without keys
// or a key left without tags is recorded as an orphan.
func (x *Index) Remove(ctx context.Context, key string, tags ...string) bool {
	tags = util.UniqSorted(tags)
	if len(tags) == 0 {
		return true
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.remove(ctx, key, tags)
}

func (x *Index) remove(ctx context.Context, key string, tags []string) bool {
	ok := true
	switch n := x.removeFrom(ctx, driver.KeyTagsKey(key), tags...); {
	case n < 0:
		ok = false
	case n == 0:
		ok = x.addTo(ctx, driver.KeyOrphansKey, key) && ok
	}
	var emptied []string
	for _, t := range tags {
		switch n := x.removeFrom(ctx, driver.TagKeysKey(t), key); {
		case n < 0:
			ok = false
		case n == 0:
			emptied = append(emptied, t)
		}
	}
	if len(emptied) > 0 && !x.addTo(ctx, driver.TagOrphansKey, emptied...) {
		ok = false
	}
	return ok
}

// Replace makes tags the exact tag set of key.
func (x *Index) Replace(ctx context.Context, key string, tags []string) bool {
	tags = util.UniqSorted(tags)
	x.mu.Lock()
	defer x.mu.Unlock()
	cur := x.read(ctx, driver.KeyTagsKey(key))
	if len(cur) == 0 && len(tags) == 0 {
		return true
	}
	ok := true
	if stale := util.Without(cur, tags...); len(stale) > 0 {
		ok = x.remove(ctx, key, stale)
	}
	if len(tags) > 0 {
		ok = x.add(ctx, key, tags) && ok
	}
	return ok
}

// Forget removes every association of a key that no longer exists and deletes
// its tag set outright.
func (x *Index) Forget(ctx context.Context, key string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.forget(ctx, key)
}

func (x *Index) forget(ctx context.Context, key string) bool {
	tags := x.read(ctx, driver.KeyTagsKey(key))
	if len(tags) == 0 {
		return true
	}
	ok := true
	var emptied []string
	for _, t := range tags {
		switch n := x.removeFrom(ctx, driver.TagKeysKey(t), key); {
		case n < 0:
			ok = false
		case n == 0:
			emptied = append(emptied, t)
		}
	}
	if len(emptied) > 0 && !x.addTo(ctx, driver.TagOrphansKey, emptied...) {
		ok = false
	}
	if !ok {
		return false // keep KEY_TAGS so a retry can finish the job
	}
	return x.d.Delete(ctx, driver.KeyTagsKey(key))
}

// Invalidate deletes every key carrying any of tags. Each successfully deleted
// key loses all of its associations; keys that fail to delete stay associated
// so a retry finds them. A tag's own entry is removed only when all of its keys
// were deleted.
func (x *Index) Invalidate(ctx context.Context, tags ...string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	ok := true
	for _, t := range util.UniqSorted(tags) {
		keys := x.read(ctx, driver.TagKeysKey(t))
		deleted, failed := 0, 0
		for _, k := range keys {
			if !x.d.Delete(ctx, k) {
				failed++
				continue
			}
			deleted++
			if !x.forget(ctx, k) {
				x.log.Warn("tag index cleanup failed", log.Fields{"tag": t, "key": k})
			}
		}
		if failed == 0 {
			if x.d.Delete(ctx, driver.TagKeysKey(t)) {
				x.removeFrom(ctx, driver.TagOrphansKey, t)
			}
		} else {
			ok = false
			x.log.Warn("tag invalidation incomplete", log.Fields{"tag": t, "deleted": deleted, "failed": failed})
		}
		x.hooks.TagInvalidated(t, deleted, failed)
	}
	return ok
}

// Prune deletes the index entries of orphaned tags and keys that are still empty.
func (x *Index) Prune(ctx context.Context) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	ok := true
	for _, t := range x.read(ctx, driver.TagOrphansKey) {
		if len(x.read(ctx, driver.TagKeysKey(t))) == 0 && !x.d.Delete(ctx, driver.TagKeysKey(t)) {
			ok = false
		}
	}
	for _, k := range x.read(ctx, driver.KeyOrphansKey) {
		if len(x.read(ctx, driver.KeyTagsKey(k))) == 0 && !x.d.Delete(ctx, driver.KeyTagsKey(k)) {
			ok = false
		}
	}
	if !ok {
		return false
	}
	return x.d.DeleteMany(ctx, []string{driver.TagOrphansKey, driver.KeyOrphansKey})
}
