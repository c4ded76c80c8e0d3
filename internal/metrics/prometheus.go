package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealroom_chat_duration_seconds",
			Help:    "Chat round-trip duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"model"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_chat_total",
			Help: "Total chat calls by outcome",
		},
		[]string{"status"},
	)

	CitationsPerAnswer = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealroom_citations_per_answer",
			Help:    "Distinct cited documents per answer",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	GroundingChunksPerAnswer = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealroom_grounding_chunks_per_answer",
			Help:    "Retrieved chunks backing each answer",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_tokens_total",
			Help: "Provider tokens consumed by type",
		},
		[]string{"model", "type"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_uploads_total",
			Help: "Total document uploads by outcome",
		},
		[]string{"status"},
	)

	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealroom_upload_duration_seconds",
			Help:    "Upload duration including indexing wait",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	UploadPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealroom_upload_polls",
			Help:    "Operation status checks per upload",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 600},
		},
	)

	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_provider_requests_total",
			Help: "Provider API requests by operation and status",
		},
		[]string{"op", "status"},
	)

	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealroom_store_operations_total",
			Help: "Store registry operations by outcome",
		},
		[]string{"op", "status"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dealroom_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	HistoryTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealroom_history_turns",
			Help:    "Prior turns forwarded with each chat",
			Buckets: []float64{0, 2, 4, 8, 16, 32, 64},
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ChatDuration,
			ChatTotal,
			CitationsPerAnswer,
			GroundingChunksPerAnswer,
			TokensUsed,
			UploadsTotal,
			UploadDuration,
			UploadPolls,
			ProviderRequests,
			StoreOperations,
			CircuitState,
			HistoryTurns,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
