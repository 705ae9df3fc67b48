package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submission metrics
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_client_submissions_total",
		Help: "Total number of user submissions handled",
	}, []string{"mode", "status"})

	// Message metrics
	messagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_client_messages_appended_total",
		Help: "Total number of messages appended to the session log",
	}, []string{"mode", "sender"})

	// Gateway metrics
	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatbot_client_gateway_request_duration_seconds",
		Help:    "Duration of knowledge-service requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_client_gateway_requests_total",
		Help: "Total number of knowledge-service requests",
	}, []string{"operation", "status"})

	// Trivia metrics
	triviaGamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_client_trivia_games_started_total",
		Help: "Total number of trivia games started",
	})

	triviaGamesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_client_trivia_games_completed_total",
		Help: "Total number of trivia games played to completion or ended",
	})

	triviaActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatbot_client_trivia_active",
		Help: "Whether a trivia game is currently in progress (0 or 1)",
	})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_client_cache_hits_total",
		Help: "Total number of answer cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_client_cache_misses_total",
		Help: "Total number of answer cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_client_rate_limit_exceeded_total",
		Help: "Total number of submissions rejected by the rate limiter",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSubmission records a handled user submission
func (m *Metrics) RecordSubmission(mode, status string) {
	submissionsTotal.WithLabelValues(mode, status).Inc()
}

// RecordMessageAppended records a message added to the session log
func (m *Metrics) RecordMessageAppended(mode, sender string) {
	messagesAppended.WithLabelValues(mode, sender).Inc()
}

// RecordGatewayRequest records a knowledge-service request
func (m *Metrics) RecordGatewayRequest(operation, status string, duration time.Duration) {
	gatewayRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	gatewayRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordTriviaStarted records a trivia game start
func (m *Metrics) RecordTriviaStarted() {
	triviaGamesStarted.Inc()
	triviaActive.Set(1)
}

// RecordTriviaCompleted records a trivia game ending
func (m *Metrics) RecordTriviaCompleted() {
	triviaGamesCompleted.Inc()
	triviaActive.Set(0)
}

// RecordCacheHit records an answer cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records an answer cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rejected submission
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
