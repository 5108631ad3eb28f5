// Package hooks defines lightweight callbacks for high-signal cache events.
package hooks

// Hooks receives high-signal events from drivers, chains, tag indexes and namespaces.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A stored record could not be decoded and was dropped (read degraded to a miss).
	// reason ∈ {"corrupt", "value_decode", "key_mismatch"}
	CorruptEntry(driver, key, reason string)

	// A driver refused or failed a write.
	WriteRejected(driver, key string)

	// A write attempt failed and will be retried (attempt starts at 1).
	WriteRetry(driver, key string, attempt int, err error)

	// A capacity-bound driver evicted a live entry.
	Evicted(driver, key string)

	// A chain hit at tier `from` was copied into the `into` faster tiers.
	Promoted(key string, from, into int)

	// A tag invalidation finished. failed > 0 means keys remain associated.
	TagInvalidated(tag string, deleted, failed int)

	// A namespace version was bumped.
	NamespaceInvalidated(namespace string, version uint64)

	// Persisting a namespace version bump failed.
	NamespaceBumpError(namespace string, err error)
}

// Nop is the default no-op.
type Nop struct{}

func (Nop) CorruptEntry(string, string, string)   {}
func (Nop) WriteRejected(string, string)          {}
func (Nop) WriteRetry(string, string, int, error) {}
func (Nop) Evicted(string, string)                {}
func (Nop) Promoted(string, int, int)             {}
func (Nop) TagInvalidated(string, int, int)       {}
func (Nop) NamespaceInvalidated(string, uint64)   {}
func (Nop) NamespaceBumpError(string, error)      {}

// OrNop returns h, or Nop when h is nil.
func OrNop(h Hooks) Hooks {
	if h == nil {
		return Nop{}
	}
	return h
}
