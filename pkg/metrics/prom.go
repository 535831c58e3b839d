package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Lookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geof_lookups_total",
			Help: "Total number of feature lookups by outcome",
		},
		[]string{"outcome"},
	)

	LookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geof_lookup_duration_seconds",
			Help:    "Duration of feature lookups by outcome, including query execution and GeoJSON rendering",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// FeaturesReturned is only observed for successful lookups, so its labels
	// name tables that exist.
	FeaturesReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geof_features_returned",
			Help:    "Number of features per FeatureCollection",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"database", "table"},
	)

	RouteMismatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geof_route_mismatches_total",
			Help: "Total number of requests rejected because method or path did not match the lookup grammar",
		},
		[]string{"method"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geof_http_requests_total",
			Help: "Total number of HTTP requests by status code and method",
		},
		[]string{"code", "method"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geof_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by status code and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"code", "method"},
	)

	SchemaLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geof_schema_loads_total",
			Help: "Total number of catalog queries issued to load table columns",
		},
		[]string{"database"},
	)
)

// NewOpenPoolsGauge reports the number of databases listed by list. It is
// not registered; callers register it once with the registry they serve.
func NewOpenPoolsGauge(list func() []string) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "geof_open_pools",
			Help: "Number of databases with an open connection pool",
		},
		func() float64 { return float64(len(list())) },
	)
}

// MethodLabel maps a request method onto a fixed label set.
func MethodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	default:
		return "OTHER"
	}
}

// Lookup outcomes
const (
	OutcomeOK           = "ok"
	OutcomeInvalidValue = "invalid_value"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
	Logger            *zap.Logger   // defaults to a no-op logger
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Logger:            zap.NewNop(),
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options
// The server gracefully shutdown when the provided context is canceled
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			effectiveOpts.Logger = opts.Logger
		}
	}
	logger := effectiveOpts.Logger.With(zap.String("addr", effectiveOpts.Addr))

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("path", effectiveOpts.Path))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server stopped")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
