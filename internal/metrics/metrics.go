package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	llmReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Name:      "llm_requests_total",
			Help:      "Total LLM gateway requests by provider, family and result",
		},
		[]string{"provider", "family", "result"},
	)

	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docstream",
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM gateway requests by provider and family",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "family"},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Name:      "pages_processed_total",
			Help:      "Total pipeline pages processed by stage and result",
		},
		[]string{"stage", "result"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Name:      "ingestion_jobs_total",
			Help:      "Ingestion jobs by result (success, failed)",
		},
		[]string{"result"},
	)

	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Name:      "queue_events_total",
			Help:      "Blob-created events consumed by result (processed, skipped, failed)",
		},
		[]string{"result"},
	)

	searchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Name:      "search_queries_total",
			Help:      "Search service queries by kind (hybrid, wide, index, delete) and result",
		},
		[]string{"kind", "result"},
	)

	blobBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Name:      "blob_bytes_total",
			Help:      "Bytes moved through the blob store by direction (upload, download)",
		},
		[]string{"direction"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docstream",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(llmReqs, llmLatency, pagesProcessed, jobsTotal, eventsConsumed, searchQueries, blobBytes, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveLLM(provider, family, result string, dur time.Duration) {
	llmReqs.WithLabelValues(provider, family, result).Inc()
	llmLatency.WithLabelValues(provider, family).Observe(dur.Seconds())
}

func IncPageStage(stage, result string) { pagesProcessed.WithLabelValues(stage, result).Inc() }
func IncJob(result string)              { jobsTotal.WithLabelValues(result).Inc() }
func IncEvent(result string)            { eventsConsumed.WithLabelValues(result).Inc() }
func IncSearch(kind, result string)     { searchQueries.WithLabelValues(kind, result).Inc() }

func AddBlobBytes(direction string, n int) { blobBytes.WithLabelValues(direction).Add(float64(n)) }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
