package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ovipipe"

// Metrics holds the instruments registered for one application instance.
type Metrics struct {
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	cacheJoins    *prometheus.CounterVec
	staleResults  *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	evalSeconds   *prometheus.HistogramVec
	modFailures   *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	cacheCounter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"cache"})
	}
	m := &Metrics{
		cacheHits:     cacheCounter("hits_total", "Evaluation requests answered from a cache entry."),
		cacheMisses:   cacheCounter("misses_total", "Evaluation requests that started a computation."),
		cacheJoins:    cacheCounter("joins_total", "Evaluation requests that joined an in-flight computation."),
		staleResults:  cacheCounter("stale_results_total", "Finished computations discarded because the cache was invalidated meanwhile."),
		invalidations: cacheCounter("invalidations_total", "Cache invalidations."),
		evalSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evaluation_seconds",
			Help:      "Duration of computations started by a cache.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"cache"}),
		modFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modifier",
			Name:      "failures_total",
			Help:      "Modifier evaluations that failed and were turned into an error state.",
		}, []string{"modifier"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.cacheJoins, m.staleResults, m.invalidations, m.evalSeconds, m.modFailures)
	return m
}

// Cache returns the recorder for caches of the given role.
func (m *Metrics) Cache(role string) *CacheRecorder {
	if m == nil {
		return nil
	}
	return &CacheRecorder{
		hits:          m.cacheHits.WithLabelValues(role),
		misses:        m.cacheMisses.WithLabelValues(role),
		joins:         m.cacheJoins.WithLabelValues(role),
		stale:         m.staleResults.WithLabelValues(role),
		invalidations: m.invalidations.WithLabelValues(role),
		duration:      m.evalSeconds.WithLabelValues(role),
	}
}

// ModifierFailed counts a failed evaluation of the named modifier type.
func (m *Metrics) ModifierFailed(modifier string) {
	if m == nil {
		return
	}
	m.modFailures.WithLabelValues(modifier).Inc()
}

// CacheRecorder records the events of caches of one role.
type CacheRecorder struct {
	hits, misses, joins, stale, invalidations prometheus.Counter
	duration                                  prometheus.Observer
}

// Hit counts a request answered from the cache.
func (r *CacheRecorder) Hit() {
	if r != nil {
		r.hits.Inc()
	}
}

// Miss counts a request that started a computation.
func (r *CacheRecorder) Miss() {
	if r != nil {
		r.misses.Inc()
	}
}

// Join counts a request that joined an in-flight computation.
func (r *CacheRecorder) Join() {
	if r != nil {
		r.joins.Inc()
	}
}

// Stale counts a discarded late result.
func (r *CacheRecorder) Stale() {
	if r != nil {
		r.stale.Inc()
	}
}

// Invalidated counts an invalidation.
func (r *CacheRecorder) Invalidated() {
	if r != nil {
		r.invalidations.Inc()
	}
}

// Observe records the duration of a computation that started at start.
func (r *CacheRecorder) Observe(start time.Time) {
	if r != nil {
		r.duration.Observe(time.Since(start).Seconds())
	}
}
