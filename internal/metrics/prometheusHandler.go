package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var countJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ingest_jobs_in_queue",
	Help: "Number of ingestion jobs waiting for a worker",
})

var dispatcherSignalCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dispatcher_signal_total",
	Help: "How often the dispatcher has been signaled to start a worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active ingestion workers",
})

var ingestionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "document_ingestion_total",
	Help: "Ingested documents labelled by terminal status",
}, []string{"status"})

var ingestedChunks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ingested_chunks_total",
	Help: "Chunks persisted by successful ingestions",
})

var retrievalTier = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "retrieval_tier_total",
	Help: "Which fallback tier produced the evidence set",
}, []string{"tier"})

var degradations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "degraded_operations_total",
	Help: "Best effort steps that fell back instead of failing",
}, []string{"operation"})

var answers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "answers_total",
	Help: "Query responses labelled by outcome",
}, []string{"outcome"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "query_duration_seconds",
	Help:    "Total time spent answering a query.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30},
}, []string{"outcome"})

var ingestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ingestion_duration_seconds",
	Help:    "Total time spent ingesting one document.",
	Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the recorder.
func (r *HttpStatusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *HttpStatusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func IncrementJobsInQueue() {
	countJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	countJobsInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}

func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

func CaptureIngestion(status string, chunks int, timeElapsed time.Duration) {
	ingestionOutcomes.WithLabelValues(status).Inc()
	ingestionDuration.WithLabelValues(status).Observe(timeElapsed.Seconds())
	if chunks > 0 {
		ingestedChunks.Add(float64(chunks))
	}
}

func CaptureRetrievalTier(tier string) {
	retrievalTier.WithLabelValues(tier).Inc()
}

// CaptureDegradation counts translation, detection, rerank and dense search fallbacks.
func CaptureDegradation(operation string) {
	degradations.WithLabelValues(operation).Inc()
}

func CaptureAnswer(outcome string, timeElapsed time.Duration) {
	answers.WithLabelValues(outcome).Inc()
	requestDuration.WithLabelValues(outcome).Observe(timeElapsed.Seconds())
}

func CaptureDependencyLatency(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}
