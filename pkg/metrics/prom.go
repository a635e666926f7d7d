package metrics

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Regenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgsynth_regenerations_total",
			Help: "Total number of generation passes by result",
		},
		[]string{"result"},
	)

	RegenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgsynth_regeneration_duration_seconds",
			Help:    "Duration of generation passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	Warnings = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgsynth_warnings",
			Help: "Diagnostics of the live artifacts by kind",
		},
		[]string{"kind"},
	)

	Routes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgsynth_routes",
			Help: "Number of routes in the live artifacts",
		},
	)

	Models = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgsynth_models",
			Help: "Number of models in the live artifacts",
		},
	)

	Triggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgsynth_reload_triggers_total",
			Help: "Total number of regeneration requests by trigger",
		},
		[]string{"trigger"},
	)

	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgsynth_http_requests_total",
			Help: "Total number of REST requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgsynth_http_request_duration_seconds",
			Help:    "Duration of REST requests by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// ServerOptions configures Serve. Zero fields take defaults.
type ServerOptions struct {
	Addr   string
	Path   string
	Logger *zap.Logger
	// Gatherer is exposed instead of the default registry when set.
	Gatherer prometheus.Gatherer
	// Ready, if set, receives the bound address once the listener is up.
	Ready func(addr string)
}

const (
	DefaultAddr = ":9100"
	DefaultPath = "/metrics"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 3 * time.Second
)

// Serve exposes the collectors over HTTP until ctx is done, then shuts the
// server down. It returns nil after a clean shutdown.
func Serve(ctx context.Context, opts ServerOptions) error {
	addr := cmp.Or(opts.Addr, DefaultAddr)
	logger := cmp.Or(opts.Logger, zap.NewNop())
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+cmp.Or(opts.Path, DefaultPath), promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	logger = logger.With(zap.String("addr", ln.Addr().String()))
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving metrics")
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
