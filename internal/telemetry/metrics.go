// Package telemetry defines the process metrics.
package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docgen/internal/logging"
)

var (
	// CacheLookups counts template cache lookups by result: hit, inflight, miss.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docgen",
		Name:      "template_cache_lookups_total",
		Help:      "Template cache lookups by result.",
	}, []string{"result"})

	// Compiles counts finished compile jobs by outcome: ok, failed.
	Compiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docgen",
		Name:      "template_compiles_total",
		Help:      "Finished template compile jobs by outcome.",
	}, []string{"outcome"})

	CompileSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docgen",
		Name:      "template_compile_seconds",
		Help:      "Time spent compiling one template.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	// Renders counts renders by conversion and outcome (ok or the error class).
	Renders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docgen",
		Name:      "renders_total",
		Help:      "Document renders by conversion and outcome.",
	}, []string{"conversion", "outcome"})

	RenderSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docgen",
		Name:      "render_seconds",
		Help:      "Time spent rendering one document.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"conversion"})
)

// Expose serves /metrics on port in the background until the returned
// server is shut down.
func Expose(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("telemetry: metrics listener stopped", "port", port, "err", err)
		}
	}()
	return srv
}
