// Package metrics provides Prometheus metrics for the feed pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchTotal counts outbound source requests.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedwatch",
			Name:      "fetch_total",
			Help:      "Total number of source requests",
		},
		[]string{"fetcher", "status"},
	)

	// PollTotal counts poll iterations.
	PollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedwatch",
			Name:      "poll_total",
			Help:      "Total number of poll iterations",
		},
		[]string{"loop", "status"},
	)

	// PollDuration measures how long a poll iteration takes.
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedwatch",
			Name:      "poll_duration_seconds",
			Help:      "Duration of poll iterations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"loop"},
	)

	// DispatchTotal counts dispatcher decisions per matched item.
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedwatch",
			Name:      "dispatch_total",
			Help:      "Dispatcher outcomes for matched items",
		},
		[]string{"outcome"},
	)

	// DeliveryTotal counts delivery worker sends.
	DeliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedwatch",
			Name:      "delivery_total",
			Help:      "Total number of deliveries by status",
		},
		[]string{"status"},
	)

	// OutboxDepth tracks queued deliveries.
	OutboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "feedwatch",
			Name:      "outbox_depth",
			Help:      "Number of deliveries waiting in the outbox",
		},
	)
)

// RecordFetch records a source request.
func RecordFetch(fetcher, status string) {
	FetchTotal.WithLabelValues(fetcher, status).Inc()
}

// RecordPoll records a finished poll iteration.
func RecordPoll(loop, status string, duration time.Duration) {
	PollTotal.WithLabelValues(loop, status).Inc()
	PollDuration.WithLabelValues(loop).Observe(duration.Seconds())
}

// RecordDispatch records a dispatcher outcome.
func RecordDispatch(outcome string) {
	DispatchTotal.WithLabelValues(outcome).Inc()
}

// RecordDelivery records a delivery attempt.
func RecordDelivery(status string) {
	DeliveryTotal.WithLabelValues(status).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "addr", addr, "error", err)
	}
}
