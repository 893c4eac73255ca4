package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	generationAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_generation_attempts_total",
			Help: "Total number of generation attempts sent to the provider.",
		},
	)
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_intents_total",
			Help: "Total number of intents by terminal outcome.",
		},
		[]string{"outcome"},
	)
	providerRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_provider_request_seconds",
			Help:    "Provider round-trip latency, including internal retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "outcome"},
	)
	executionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_execution_seconds",
			Help:    "Candidate statement execution latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"outcome"},
	)
	extractionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_extraction_failures_total",
			Help: "Total number of completions with no extractable statement.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationAttemptsTotal,
		intentsTotal,
		providerRequestSeconds,
		executionSeconds,
		extractionFailuresTotal,
	)
}

func IncrementGenerationAttempts() {
	generationAttemptsTotal.Inc()
}

func IncrementIntents(outcome string) {
	intentsTotal.WithLabelValues(outcome).Inc()
}

func ObserveProviderRequest(provider, outcome string, elapsed time.Duration) {
	providerRequestSeconds.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

func ObserveExecution(outcome string, elapsed time.Duration) {
	executionSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func IncrementExtractionFailures() {
	extractionFailuresTotal.Inc()
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
