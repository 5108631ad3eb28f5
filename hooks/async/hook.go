// Package asynchook moves hook delivery off the cache's hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{CorruptEvery: 10})
//	h := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer h.Close()
//
//	users, _ := cachepool.New(cachepool.Options[User]{
//	    Driver: mem,
//	    Codec:  codec.JSON[User]{},
//	    Hooks:  h, // or raw if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/cachepool/hooks"
)

// Hooks forwards events to inner through a bounded queue. Events are dropped
// when the queue is full.
type Hooks struct {
	inner   hooks.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed q
	closed  bool
	dropped atomic.Uint64
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(inner hooks.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: hooks.OrNop(inner), q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CorruptEntry(d, k, r string) { h.try(func() { h.inner.CorruptEntry(d, k, r) }) }
func (h *Hooks) WriteRejected(d, k string)   { h.try(func() { h.inner.WriteRejected(d, k) }) }
func (h *Hooks) Evicted(d, k string)         { h.try(func() { h.inner.Evicted(d, k) }) }
func (h *Hooks) Promoted(k string, from, into int) {
	h.try(func() { h.inner.Promoted(k, from, into) })
}
func (h *Hooks) WriteRetry(d, k string, attempt int, err error) {
	h.try(func() { h.inner.WriteRetry(d, k, attempt, err) })
}
func (h *Hooks) TagInvalidated(tag string, deleted, failed int) {
	h.try(func() { h.inner.TagInvalidated(tag, deleted, failed) })
}
func (h *Hooks) NamespaceInvalidated(ns string, v uint64) {
	h.try(func() { h.inner.NamespaceInvalidated(ns, v) })
}
func (h *Hooks) NamespaceBumpError(ns string, err error) {
	h.try(func() { h.inner.NamespaceBumpError(ns, err) })
}
