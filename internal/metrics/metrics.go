// Package metrics exports Prometheus counters for the resize engine.
// All methods are safe on a nil receiver so wiring metrics stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Metrics struct {
	requests     *prometheus.CounterVec
	hits         *prometheus.CounterVec
	misses       prometheus.Counter
	fetches      prometheus.Counter
	fetchErrors  prometheus.Counter
	transforms   prometheus.Counter
	transformDur prometheus.Histogram
	evictions    prometheus.Counter
}

// New constructs the metrics set and registers it.
//   - reg: registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns:  Prometheus namespace
func New(reg prometheus.Registerer, ns string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_total",
			Help:      "Resize requests by outcome",
		}, []string{"outcome"}),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_hits_total",
			Help:      "Cache hits by kind (exact, bestfit)",
		}, []string{"kind"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_misses_total",
			Help:      "Requests that found no usable cached bytes",
		}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "remote_fetches_total",
			Help:      "Original assets fetched from upstream",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "remote_fetch_errors_total",
			Help:      "Failed upstream fetches",
		}),
		transforms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "transforms_total",
			Help:      "Resize pipeline invocations",
		}),
		transformDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "transform_duration_seconds",
			Help:      "Decode+resize+encode latency",
			Buckets:   prometheus.DefBuckets,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "evictions_total",
			Help:      "Cached files evicted",
		}),
	}
	reg.MustRegister(
		m.requests, m.hits, m.misses,
		m.fetches, m.fetchErrors,
		m.transforms, m.transformDur,
		m.evictions,
	)
	return m
}

// Request records a finished request with an outcome label
// ("ok", "invalid", "notfound", "unsupported", "error").
func (m *Metrics) Request(outcome string) {
	if m != nil {
		m.requests.WithLabelValues(outcome).Inc()
	}
}

// Hit records a cache hit of the given kind ("exact" or "bestfit").
func (m *Metrics) Hit(kind string) {
	if m != nil {
		m.hits.WithLabelValues(kind).Inc()
	}
}

// Miss records a request that had to go to the original.
func (m *Metrics) Miss() {
	if m != nil {
		m.misses.Inc()
	}
}

// Fetch records an upstream fetch attempt and its failure, if any.
func (m *Metrics) Fetch(err error) {
	if m == nil {
		return
	}
	m.fetches.Inc()
	if err != nil {
		m.fetchErrors.Inc()
	}
}

// Transform records one pipeline invocation and its duration.
func (m *Metrics) Transform(d time.Duration) {
	if m != nil {
		m.transforms.Inc()
		m.transformDur.Observe(d.Seconds())
	}
}

// Evicted implements eviction.Observer.
func (m *Metrics) Evicted(key string, size int64) {
	if m != nil {
		m.evictions.Inc()
	}
}
