package metrics

import (
	"time"

	"github.com/cuemby/pcsd/pkg/types"
)

const defaultInterval = 15 * time.Second

// StateSource is the daemon state the collector samples
type StateSource interface {
	Clusters() ([]types.Cluster, error)
	TokenCount() int
	PeerCount() (int, error)
	// CheckHealth reports the health of each named component; a nil error
	// means healthy
	CheckHealth() map[string]error
}

// Collector periodically publishes gauges and component health from a StateSource
type Collector struct {
	source   StateSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StateSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the source once
func (c *Collector) Collect() {
	c.collectClusterMetrics()
	c.collectAuthMetrics()
	c.collectHealth()
}

func (c *Collector) collectClusterMetrics() {
	clusters, err := c.source.Clusters()
	if err != nil {
		return
	}

	nodes := make(map[string]struct{})
	for _, cl := range clusters {
		for _, n := range cl.Nodes {
			nodes[n] = struct{}{}
		}
	}

	ClustersTotal.Set(float64(len(clusters)))
	ClusterNodesTotal.Set(float64(len(nodes)))
}

func (c *Collector) collectAuthMetrics() {
	TokensTotal.Set(float64(c.source.TokenCount()))

	if peers, err := c.source.PeerCount(); err == nil {
		PeersTotal.Set(float64(peers))
	}
}

func (c *Collector) collectHealth() {
	for name, err := range c.source.CheckHealth() {
		if err != nil {
			RegisterComponent(name, false, err.Error())
		} else {
			RegisterComponent(name, true, "")
		}
	}
}
