package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/pkg/logging"
)

var (
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_turns_total",
			Help: "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	TokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_tokens_total",
			Help: "Total number of generated tokens streamed to the user",
		},
	)

	EngineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_engine_errors_total",
			Help: "Total number of engine step errors by engine type",
		},
		[]string{"engine"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parley_turn_duration_seconds",
			Help:    "Distribution of generation time per turn",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(TurnsTotal, TokensTotal, EngineErrorsTotal, TurnDuration)
}

// Serve exposes /metrics on addr from a background goroutine. A failure to
// bind is logged, not fatal; metrics are an optional surface.
func Serve(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Warn("metrics listener failed", zap.Error(err))
		}
	}()
}
