package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the engine's Prometheus instruments. A nil Recorder is
// valid and records nothing, so tests can pass nil.
type Recorder struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	evictions       prometheus.Counter
	staleFallbacks  prometheus.Counter
	upstreamErrors  prometheus.Counter
	fetchLatency    prometheus.Histogram
	listenerPanics  prometheus.Counter
	autoSyncRefresh prometheus.Counter
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "cache_hits_total",
			Help:      "Fetches resolved from a fresh cache entry.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "cache_misses_total",
			Help:      "Fetches that went to the reporting API.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "cache_evictions_total",
			Help:      "Entries evicted to stay under capacity.",
		}),
		staleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "stale_fallbacks_total",
			Help:      "Failed fetches served from a stale cache entry.",
		}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "upstream_errors_total",
			Help:      "Reporting API fetch failures.",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metricsync",
			Name:      "fetch_latency_seconds",
			Help:      "Latency of upstream report fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		listenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "listener_panics_total",
			Help:      "Update listeners recovered from a panic.",
		}),
		autoSyncRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metricsync",
			Name:      "auto_sync_refreshes_total",
			Help:      "Background refresh ticks executed.",
		}),
	}

	reg.MustRegister(
		r.cacheHits, r.cacheMisses, r.evictions, r.staleFallbacks,
		r.upstreamErrors, r.fetchLatency, r.listenerPanics, r.autoSyncRefresh,
	)
	return r
}

func (r *Recorder) CacheHit() {
	if r != nil {
		r.cacheHits.Inc()
	}
}

func (r *Recorder) CacheMiss() {
	if r != nil {
		r.cacheMisses.Inc()
	}
}

func (r *Recorder) Eviction() {
	if r != nil {
		r.evictions.Inc()
	}
}

func (r *Recorder) StaleFallback() {
	if r != nil {
		r.staleFallbacks.Inc()
	}
}

func (r *Recorder) UpstreamError() {
	if r != nil {
		r.upstreamErrors.Inc()
	}
}

func (r *Recorder) FetchLatency(d time.Duration) {
	if r != nil {
		r.fetchLatency.Observe(d.Seconds())
	}
}

func (r *Recorder) ListenerPanic() {
	if r != nil {
		r.listenerPanics.Inc()
	}
}

func (r *Recorder) AutoSyncRefresh() {
	if r != nil {
		r.autoSyncRefresh.Inc()
	}
}
