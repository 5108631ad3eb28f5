// Package sloghooks logs hook events through log/slog with sampling and key
// redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cachepool/hooks"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	CorruptEvery  uint64
	EvictionEvery uint64
	PromoteEvery  uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	corruptCtr atomic.Uint64
	evictCtr   atomic.Uint64
	promoteCtr atomic.Uint64
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CorruptEntry(driver, key, reason string) {
	if h.l == nil || !sample(h.opts.CorruptEvery, &h.corruptCtr) {
		return
	}
	h.l.Warn("cachepool.corrupt_entry",
		"driver", driver,
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) WriteRejected(driver, key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachepool.write_rejected",
		"driver", driver,
		"key", h.redact(key))
}

func (h *Hooks) WriteRetry(driver, key string, attempt int, err error) {
	if h.l == nil {
		return
	}
	h.l.Debug("cachepool.write_retry",
		"driver", driver,
		"key", h.redact(key),
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) Evicted(driver, key string) {
	if h.l == nil || !sample(h.opts.EvictionEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("cachepool.evicted",
		"driver", driver,
		"key", h.redact(key))
}

func (h *Hooks) Promoted(key string, from, into int) {
	if h.l == nil || !sample(h.opts.PromoteEvery, &h.promoteCtr) {
		return
	}
	h.l.Debug("cachepool.promoted",
		"key", h.redact(key),
		"from", from,
		"into", into)
}

func (h *Hooks) TagInvalidated(tag string, deleted, failed int) {
	if h.l == nil {
		return
	}
	if failed > 0 {
		h.l.Warn("cachepool.tag_invalidated",
			"tag", tag,
			"deleted", deleted,
			"failed", failed)
		return
	}
	h.l.Info("cachepool.tag_invalidated",
		"tag", tag,
		"deleted", deleted)
}

func (h *Hooks) NamespaceInvalidated(ns string, version uint64) {
	if h.l == nil {
		return
	}
	h.l.Info("cachepool.namespace_invalidated",
		"namespace", ns,
		"version", version)
}

func (h *Hooks) NamespaceBumpError(ns string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("cachepool.namespace_bump_error",
		"namespace", ns,
		"err", err)
}
