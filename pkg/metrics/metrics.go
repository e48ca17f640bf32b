package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transport metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdeck_http_requests_total",
			Help: "Total number of API requests by method, endpoint and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvdeck_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	AuthLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdeck_auth_lost_total",
			Help: "Total number of 401 responses that triggered the auth-lost handler",
		},
	)

	// Session metrics
	SessionResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdeck_session_resolutions_total",
			Help: "Total number of identity lookups by outcome",
		},
		[]string{"result"},
	)

	// Key-space metrics
	CacheKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdeck_keyspace_cache_keys",
			Help: "Number of key records held in the active flat cache",
		},
	)

	TreeRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdeck_keyspace_tree_rebuild_seconds",
			Help:    "Time taken to rebuild the key tree from the flat cache",
			Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
		},
	)

	KeyspaceOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdeck_keyspace_operations_total",
			Help: "Total number of key-space operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	EtcdHealthLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdeck_etcd_health_latency_seconds",
			Help:    "Round trip of etcd health probes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AuthLostTotal)
	prometheus.MustRegister(SessionResolutionsTotal)
	prometheus.MustRegister(CacheKeys)
	prometheus.MustRegister(TreeRebuildDuration)
	prometheus.MustRegister(KeyspaceOperationsTotal)
	prometheus.MustRegister(EtcdHealthLatency)
}

// Result labels an outcome for the *_total counters
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
