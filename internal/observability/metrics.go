package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	gradingRequestsTotal  *prometheus.CounterVec
	gradingLatencySeconds *prometheus.HistogramVec
	gradingErrorsTotal    *prometheus.CounterVec
	evidenceOutcomesTotal *prometheus.CounterVec
	normalizerOutcomes    *prometheus.CounterVec
	pipelineResultsTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		gradingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_requests_total",
			Help: "Total number of grading API requests served.",
		}, []string{"method", "route", "status"})

		gradingLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_latency_seconds",
			Help:    "Latency distribution for grading API requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"})

		gradingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_errors_total",
			Help: "Total number of error responses returned by grading endpoints.",
		}, []string{"method", "route", "status"})

		evidenceOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_evidence_outcomes_total",
			Help: "Repository evidence collection outcomes by status and cache use.",
		}, []string{"status", "cache"})

		normalizerOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_normalizer_outcomes_total",
			Help: "Engine response normalization outcomes.",
		}, []string{"outcome"})

		pipelineResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_pipeline_results_total",
			Help: "Pipeline operation results by kind (engine, mock, failure).",
		}, []string{"operation", "kind"})

		prometheus.MustRegister(
			gradingRequestsTotal,
			gradingLatencySeconds,
			gradingErrorsTotal,
			evidenceOutcomesTotal,
			normalizerOutcomes,
			pipelineResultsTotal,
		)
	})
}

// GradingRequests exposes the counter for grading requests.
func GradingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRequestsTotal
}

// GradingLatency exposes the latency histogram for grading requests.
func GradingLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingLatencySeconds
}

// GradingErrors exposes the counter for grading error responses.
func GradingErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingErrorsTotal
}

// EvidenceOutcomes exposes the evidence collection counter.
func EvidenceOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return evidenceOutcomesTotal
}

// NormalizerOutcomes exposes the normalization outcome counter.
func NormalizerOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return normalizerOutcomes
}

// PipelineResults exposes the pipeline result counter.
func PipelineResults() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineResultsTotal
}
