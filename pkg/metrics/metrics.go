package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	ClustersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcsd_clusters_total",
			Help: "Number of clusters in the registry",
		},
	)

	ClusterNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcsd_cluster_nodes_total",
			Help: "Number of distinct nodes across registered clusters",
		},
	)

	PeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcsd_peers_total",
			Help: "Number of peers with a stored outbound token",
		},
	)

	// Auth metrics
	TokensTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcsd_tokens_total",
			Help: "Number of token records in the credential store",
		},
	)

	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pcsd_tokens_issued_total",
			Help: "Total number of tokens issued",
		},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcsd_auth_failures_total",
			Help: "Total number of rejected logins by reason",
		},
		[]string{"reason"},
	)

	// Node RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcsd_rpc_requests_total",
			Help: "Total number of outbound node RPCs by command and result",
		},
		[]string{"command", "result"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pcsd_rpc_request_duration_seconds",
			Help:    "Outbound node RPC duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Aggregator metrics
	AggregateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pcsd_aggregate_duration_seconds",
			Help:    "Time taken to collect status from all targeted nodes",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregateNodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcsd_aggregate_node_failures_total",
			Help: "Total number of per-node failures during aggregation by reason",
		},
		[]string{"reason"},
	)

	// Dispatcher metrics
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcsd_remote_requests_total",
			Help: "Total number of remote commands by command and status code",
		},
		[]string{"command", "code"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pcsd_remote_request_duration_seconds",
			Help:    "Remote command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// External tool metrics
	ToolRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcsd_tool_runs_total",
			Help: "Total number of external cluster tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)
)

func init() {
	prometheus.MustRegister(ClustersTotal)
	prometheus.MustRegister(ClusterNodesTotal)
	prometheus.MustRegister(PeersTotal)
	prometheus.MustRegister(TokensTotal)
	prometheus.MustRegister(TokensIssuedTotal)
	prometheus.MustRegister(AuthFailuresTotal)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(AggregateDuration)
	prometheus.MustRegister(AggregateNodeFailures)
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(ToolRunsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
