// Package telemetry records Prometheus metrics for upstream calls, paging,
// cache behaviour and ranking runs.
//
// A nil *Recorder is valid and records nothing, so components can be built
// without metrics in tests.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the engine's metric collectors.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	upstreamRequests   *prometheus.CounterVec
	upstreamLatency    *prometheus.HistogramVec
	reauthentications  prometheus.Counter
	fetchPages         prometheus.Counter
	fetchRetries       prometheus.Counter
	fetchFailures      prometheus.Counter
	fetchTruncations   prometheus.Counter
	cacheLookups       *prometheus.CounterVec
	tierResolutions    *prometheus.CounterVec
	technicianFailures *prometheus.CounterVec
	rankingRuns        *prometheus.CounterVec
	rankingDuration    prometheus.Histogram
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRegistry registers collectors on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Recorder) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// WithNamespace overrides the metric namespace.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets latency buckets, in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// New creates a Recorder with its collectors registered.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "techrank",
		subsystem: "engine",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(r.registry)

	r.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "upstream_requests_total",
		Help:      "Upstream API calls by resource and outcome",
	}, []string{"resource", "outcome"})

	r.upstreamLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream API call latency",
		Buckets:   r.buckets,
	}, []string{"resource"})

	r.reauthentications = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "reauthentications_total",
		Help:      "Session re-authentications after an expired token",
	})

	r.fetchPages = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "fetch_pages_total",
		Help:      "Windowed pages retrieved by the fetcher",
	})

	r.fetchRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "fetch_retries_total",
		Help:      "Page retries after transient upstream failures",
	})

	r.fetchFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "fetch_failures_total",
		Help:      "Fetches abandoned with a partial fetch error",
	})

	r.fetchTruncations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "fetch_truncations_total",
		Help:      "Fetches stopped by the safety ceiling",
	})

	r.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "cache_lookups_total",
		Help:      "Result cache lookups by cache name and result",
	}, []string{"cache", "result"})

	r.tierResolutions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "tier_resolutions_total",
		Help:      "Tier resolutions by the source that decided them",
	}, []string{"source"})

	r.technicianFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "technician_failures_total",
		Help:      "Technician-scoped failures by degradation action",
	}, []string{"action"})

	r.rankingRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "ranking_runs_total",
		Help:      "Ranking runs by outcome",
	}, []string{"outcome"})

	r.rankingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "ranking_duration_seconds",
		Help:      "Wall time of cold ranking runs",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	return r
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) UpstreamRequest(resource, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.upstreamRequests.WithLabelValues(resource, outcome).Inc()
	r.upstreamLatency.WithLabelValues(resource).Observe(elapsed.Seconds())
}

func (r *Recorder) Reauthenticated() {
	if r == nil {
		return
	}
	r.reauthentications.Inc()
}

func (r *Recorder) PageFetched() {
	if r == nil {
		return
	}
	r.fetchPages.Inc()
}

func (r *Recorder) PageRetried() {
	if r == nil {
		return
	}
	r.fetchRetries.Inc()
}

func (r *Recorder) FetchFailed() {
	if r == nil {
		return
	}
	r.fetchFailures.Inc()
}

func (r *Recorder) FetchTruncated() {
	if r == nil {
		return
	}
	r.fetchTruncations.Inc()
}

// CacheLookup records a lookup; result is one of hit, miss, stale.
func (r *Recorder) CacheLookup(cache, result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (r *Recorder) TierResolved(source string) {
	if r == nil {
		return
	}
	r.tierResolutions.WithLabelValues(source).Inc()
}

// TechnicianFailed records a degraded technician; action is stale or omitted.
func (r *Recorder) TechnicianFailed(action string) {
	if r == nil {
		return
	}
	r.technicianFailures.WithLabelValues(action).Inc()
}

// RankingRun records a finished run; outcome is complete, partial, canceled or failed.
func (r *Recorder) RankingRun(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.rankingRuns.WithLabelValues(outcome).Inc()
	if outcome != "failed" {
		r.rankingDuration.Observe(elapsed.Seconds())
	}
}
