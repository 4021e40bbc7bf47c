package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finds"

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	recipeDuration *prometheus.HistogramVec
	recipeErrors   *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	ingested       *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg. A nil reg uses the
// default registry, which backs the /metrics endpoint.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		recipeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recipe_duration_seconds",
				Help:      "Duration of numerical recipe calls",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
			},
			[]string{"recipe"},
		),
		recipeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recipe_errors_total",
				Help:      "Recipe calls that returned an error",
			},
			[]string{"recipe"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups by outcome",
			},
			[]string{"kind", "result"},
		),
		jobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Background jobs by type and final status",
			},
			[]string{"type", "status"},
		),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job run time",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_ingested_total",
				Help:      "Vintage observations written to the store",
			},
			[]string{"source"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// ObserveRecipe records one recipe call.
func (r *Recorder) ObserveRecipe(recipe string, d time.Duration, err error) {
	r.recipeDuration.WithLabelValues(recipe).Observe(d.Seconds())
	if err != nil {
		r.recipeErrors.WithLabelValues(recipe).Inc()
	}
}

// CacheLookup records a hit or miss for a cache kind such as "recipe".
func (r *Recorder) CacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// JobFinished records a job's final status and run time.
func (r *Recorder) JobFinished(jobType, status string, d time.Duration) {
	r.jobs.WithLabelValues(jobType, status).Inc()
	r.jobDuration.Observe(d.Seconds())
}

// Ingested adds n stored observations for a source (http, kafka).
func (r *Recorder) Ingested(source string, n int) {
	r.ingested.WithLabelValues(source).Add(float64(n))
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(route, method, status string, d time.Duration) {
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
