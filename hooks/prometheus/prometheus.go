// Package prometheus exports hook events as Prometheus counters.
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/cachepool/hooks"
)

// Compile-time check that Hooks implements hooks.Hooks.
var _ hooks.Hooks = (*Hooks)(nil)

// Hooks counts every event under the cachepool_ prefix.
type Hooks struct {
	corrupt         *prometheus.CounterVec
	writeRejected   *prometheus.CounterVec
	writeRetries    *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	promotions      *prometheus.CounterVec
	tagDeleted      *prometheus.CounterVec
	tagFailed       *prometheus.CounterVec
	nsInvalidations *prometheus.CounterVec
	nsBumpErrors    *prometheus.CounterVec
}

// New registers the counters on reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	vec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachepool",
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Hooks{
		corrupt:         vec("corrupt_entries_total", "Stored records dropped because they could not be decoded.", "driver", "reason"),
		writeRejected:   vec("write_rejected_total", "Writes a driver refused or failed.", "driver"),
		writeRetries:    vec("write_retries_total", "Write attempts that failed and were retried.", "driver"),
		evictions:       vec("evictions_total", "Live entries evicted by capacity-bound drivers.", "driver"),
		promotions:      vec("promotions_total", "Chain hits copied into faster tiers.", "from"),
		tagDeleted:      vec("tag_invalidated_keys_total", "Keys deleted by tag invalidation.", "tag"),
		tagFailed:       vec("tag_invalidation_failures_total", "Keys a tag invalidation failed to delete.", "tag"),
		nsInvalidations: vec("namespace_invalidations_total", "Namespace version bumps.", "namespace"),
		nsBumpErrors:    vec("namespace_bump_errors_total", "Namespace version bumps that failed to persist.", "namespace"),
	}
}

func (h *Hooks) CorruptEntry(driver, _, reason string) {
	h.corrupt.WithLabelValues(driver, reason).Inc()
}

func (h *Hooks) WriteRejected(driver, _ string) { h.writeRejected.WithLabelValues(driver).Inc() }

func (h *Hooks) WriteRetry(driver, _ string, _ int, _ error) {
	h.writeRetries.WithLabelValues(driver).Inc()
}

func (h *Hooks) Evicted(driver, _ string) { h.evictions.WithLabelValues(driver).Inc() }

func (h *Hooks) Promoted(_ string, from, _ int) {
	h.promotions.WithLabelValues(strconv.Itoa(from)).Inc()
}

func (h *Hooks) TagInvalidated(tag string, deleted, failed int) {
	h.tagDeleted.WithLabelValues(tag).Add(float64(deleted))
	h.tagFailed.WithLabelValues(tag).Add(float64(failed))
}

func (h *Hooks) NamespaceInvalidated(ns string, _ uint64) {
	h.nsInvalidations.WithLabelValues(ns).Inc()
}

func (h *Hooks) NamespaceBumpError(ns string, _ error) {
	h.nsBumpErrors.WithLabelValues(ns).Inc()
}
