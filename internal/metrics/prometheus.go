package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_router_request_duration_seconds",
			Help:    "End-to-end routing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"intent"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_requests_total",
			Help: "Routed queries by outcome",
		},
		[]string{"status"},
	)

	StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_stage_failures_total",
			Help: "Requests that entered FAILED, by stage",
		},
		[]string{"stage"},
	)

	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_classifications_total",
			Help: "Intent decisions by tier and intent",
		},
		[]string{"tier", "intent"},
	)

	ParseFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_parse_fallbacks_total",
			Help: "Model outputs that failed structured parsing and used the deterministic fallback",
		},
		[]string{"component"},
	)

	QueryShapes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_query_shapes_total",
			Help: "Recognized shapes of generated statements",
		},
		[]string{"shape"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "query_router_retrieval_results_count",
			Help:    "Number of retrieval hits per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_llm_requests_total",
			Help: "Calls to the generation and embedding endpoints",
		},
		[]string{"kind", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_router_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "query_router_documents_processed_total",
			Help: "Total documents ingested",
		},
	)

	FewShotPromotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "query_router_fewshot_promotions_total",
			Help: "Query logs promoted to few-shot examples",
		},
	)
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more
// than once, which the CLI and tests rely on.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestDuration,
			RequestsTotal,
			StageFailures,
			Classifications,
			ParseFallbacks,
			QueryShapes,
			RetrievalResultsCount,
			LLMRequests,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			DocumentsProcessed,
			FewShotPromotions,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
