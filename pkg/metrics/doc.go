/*
Package metrics provides Prometheus metrics and health endpoints for pcsd.

All metrics are registered with the Prometheus DefaultRegistry at package
init and exposed through Handler on /metrics. Gauges describing stored state
are refreshed by a Collector; counters and histograms are updated inline by
the packages that own the operation.

# Metrics Catalog

State (Collector, every 15s by default):

	pcsd_clusters_total             clusters in clusters.conf
	pcsd_cluster_nodes_total        distinct nodes across those clusters
	pcsd_tokens_total               token records in the credential store
	pcsd_peers_total                peers with a stored outbound token

Authentication:

	pcsd_tokens_issued_total
	pcsd_auth_failures_total{reason="user"|"password"}

Node RPC:

	pcsd_rpc_requests_total{command, result}
	pcsd_rpc_request_duration_seconds{command}

Aggregation:

	pcsd_aggregate_duration_seconds
	pcsd_aggregate_node_failures_total{reason}

The reason label carries the same values as the per-node error markers
returned by status_all: timeout, connection_refused, tls_error, unreachable,
http_error and invalid_response.

Remote command dispatch:

	pcsd_remote_requests_total{command, code}
	pcsd_remote_request_duration_seconds{command}

External tools:

	pcsd_tool_runs_total{tool, result}

# Health

Components report their state with RegisterComponent. GetHealth is unhealthy
when any registered component is; GetReadiness only looks at the critical
set, which defaults to the API and the peer store and can be replaced with
SetCriticalComponents.

	/health  200 healthy, 503 unhealthy
	/ready   200 ready, 503 not_ready
	/live    200 while the process runs

# Usage

	timer := metrics.NewTimer()
	resp, err := client.Do(ctx, req)
	timer.ObserveDurationVec(metrics.RPCRequestDuration, string(req.Command))

	collector := metrics.NewCollector(state, 15*time.Second)
	collector.Start()
	defer collector.Stop()
*/
package metrics
