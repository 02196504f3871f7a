package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firm-crd-matching/internal/match"
)

const namespace = "firm_match"

// Collector records matching activity. It implements match.Observer and
// owns a private registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	results     *prometheus.CounterVec
	reviews     prometheus.Counter
	ambiguous   prometheus.Counter
	divergences prometheus.Counter
	confidence  *prometheus.HistogramVec
	batches     prometheus.Counter
	batchSize   prometheus.Histogram
	duration    prometheus.Histogram
	failed      prometheus.Counter
}

// NewCollector creates a collector with Go and process metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Match results by method",
		}, []string{"method"}),
		reviews: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "needs_review_total",
			Help:      "Results flagged for human review",
		}),
		ambiguous: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_total",
			Help:      "Results where several registry firms fit equally",
		}),
		divergences: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "divergences_total",
			Help:      "Runs that would have changed a known-good decision",
		}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence",
			Help:      "Confidence of matched results",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
		}, []string{"method"}),
		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Completed batch runs",
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "records",
			Help:      "Records per batch run",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 6),
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Wall time of batch runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "failed_records_total",
			Help:      "Records that failed during matching",
		}),
	}
}

func (c *Collector) ObserveResult(r match.MatchResult) {
	c.results.WithLabelValues(r.Method.String()).Inc()
	if r.NeedsReview {
		c.reviews.Inc()
	}
	if r.Ambiguous {
		c.ambiguous.Inc()
	}
	if r.Matched() {
		c.confidence.WithLabelValues(r.Method.String()).Observe(r.Confidence)
	}
}

func (c *Collector) ObserveDivergence(match.Divergence) {
	c.divergences.Inc()
}

func (c *Collector) ObserveBatch(stats match.BatchStats, elapsed time.Duration) {
	c.batches.Inc()
	c.batchSize.Observe(float64(stats.Total))
	c.duration.Observe(elapsed.Seconds())
	c.failed.Add(float64(stats.Failed))
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
