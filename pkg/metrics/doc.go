/*
Package metrics provides Prometheus metrics for the kvdeck client.

Metrics are registered with the default Prometheus registry at init and
are always recorded. They are only exposed when the CLI is started with
--metrics (or metrics_addr in the config file), which runs Serve for the
lifetime of the command. This is mostly useful with long-running commands
such as "etcd health --watch".

# Metrics Catalog

Transport:

	kvdeck_http_requests_total{method, endpoint, status}
	kvdeck_http_request_duration_seconds{method, endpoint}
	kvdeck_auth_lost_total

The endpoint label is the request path with numeric segments replaced by
":id". The status label is the HTTP status code, or "error" when no
response arrived.

Session:

	kvdeck_session_resolutions_total{result}

result is "authenticated", "anonymous" or "superseded" (a lookup that
finished after a newer one started and was ignored).

Key space:

	kvdeck_keyspace_cache_keys
	kvdeck_keyspace_tree_rebuild_seconds
	kvdeck_keyspace_operations_total{operation, result}
	kvdeck_etcd_health_latency_seconds

The operation result label is "success" or "error", see Result.

# Usage

Timing an operation:

	timer := metrics.NewTimer()
	report, err := api.Health(ctx, clusterID)
	metrics.KeyspaceOperationsTotal.WithLabelValues("health", metrics.Result(err)).Inc()
	if err == nil {
		timer.ObserveDuration(metrics.EtcdHealthLatency)
	}

Exposing the registry:

	go func() {
		if err := metrics.Serve(ctx, "127.0.0.1:9090"); err != nil {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

Example queries:

	# Request error rate by endpoint
	sum(rate(kvdeck_http_requests_total{status!~"2.."}[5m])) by (endpoint)

	# p95 etcd health probe latency
	histogram_quantile(0.95, rate(kvdeck_etcd_health_latency_seconds_bucket[5m]))
*/
package metrics
