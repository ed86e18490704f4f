package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
	"github.com/cuemby/pcsd/pkg/rpc"
	"github.com/cuemby/pcsd/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	// StatusCommand is the remote command queried on every node
	StatusCommand = "status"

	// DefaultConcurrency bounds the number of nodes queried at once
	DefaultConcurrency = 16
	// DefaultSlack is added to the per-call timeout to form the aggregate deadline
	DefaultSlack = time.Second
)

// Caller performs one node call. *rpc.Client implements it.
type Caller interface {
	Call(ctx context.Context, node string, req rpc.Request) (*rpc.Response, error)
}

// Config configures an Aggregator
type Config struct {
	Concurrency int
	// CallTimeout is the per-call timeout of the Caller
	CallTimeout time.Duration
	Slack       time.Duration
}

// Aggregator fans a status request out to many nodes and joins the results
type Aggregator struct {
	caller   Caller
	limit    int
	deadline time.Duration
}

// New creates an aggregator over caller
func New(caller Caller, cfg Config) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = rpc.DefaultTimeout
	}
	if cfg.Slack <= 0 {
		cfg.Slack = DefaultSlack
	}
	return &Aggregator{
		caller:   caller,
		limit:    cfg.Concurrency,
		deadline: cfg.CallTimeout + cfg.Slack,
	}
}

type outcome struct {
	node   string
	result types.NodeResult
}

// Aggregate queries the status of every node and returns exactly one entry
// per distinct node. Failures never abort the aggregate; they become error
// markers. Nodes still pending when the aggregate deadline passes are
// reported as timeouts.
func (a *Aggregator) Aggregate(ctx context.Context, nodes []string) types.AggregateStatus {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AggregateDuration)

	nodes = Dedupe(nodes)
	status := make(types.AggregateStatus, len(nodes))
	if len(nodes) == 0 {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	// One slot per node so workers never block after the collector gives up
	results := make(chan outcome, len(nodes))

	var g errgroup.Group
	g.SetLimit(a.limit)
	go func() {
		for _, node := range nodes {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- outcome{node: node, result: a.query(ctx, node)}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

collect:
	for len(status) < len(nodes) {
		select {
		case out, ok := <-results:
			if !ok {
				break collect
			}
			status[out.node] = out.result
		case <-ctx.Done():
			break collect
		}
	}

	logger := log.WithComponent("aggregator")
	for _, node := range nodes {
		if _, ok := status[node]; !ok {
			status[node] = failure(types.ErrorMarker{Error: types.ReasonTimeout})
		}
		if res := status[node]; res.Failed() {
			metrics.AggregateNodeFailures.WithLabelValues(res.Err.Error).Inc()
			logger.Debug().Str("node", node).Str("reason", res.Err.Error).Msg("node status unavailable")
		}
	}

	logger.Debug().
		Int("nodes", len(nodes)).
		Int("failed", len(status.FailedNodes())).
		Dur("duration", timer.Duration()).
		Msg("aggregated status")
	return status
}

func (a *Aggregator) query(ctx context.Context, node string) types.NodeResult {
	resp, err := a.caller.Call(ctx, node, rpc.Request{Command: StatusCommand})
	if err != nil {
		return failure(markerFor(err))
	}

	report, err := types.ParseNodeStatusReport(resp.Body)
	if err != nil {
		return failure(types.ErrorMarker{Error: types.ReasonInvalidResponse})
	}
	if report.NodeName == "" {
		report.NodeName = node
	}
	return types.NodeResult{Report: report}
}

// markerFor maps a failed call to its error marker. Only an oversized body
// counts as an invalid response; anything else unclassified means the node
// was never talked to.
func markerFor(err error) types.ErrorMarker {
	if errors.Is(err, rpc.ErrBodyTooLarge) {
		return types.ErrorMarker{Error: types.ReasonInvalidResponse}
	}
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		return types.ErrorMarker{Error: types.ReasonUnreachable}
	}
	marker := types.ErrorMarker{Error: rpcErr.Kind.String()}
	if rpcErr.Kind == rpc.KindHTTP {
		marker.Status = rpcErr.Status
	}
	return marker
}

func failure(marker types.ErrorMarker) types.NodeResult {
	return types.NodeResult{Err: &marker}
}

// Dedupe drops repeated and empty node names, keeping first occurrence order
func Dedupe(nodes []string) []string {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
