package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cuemby/pcsd/pkg/types"
)

type fakeState struct {
	clusters []types.Cluster
	tokens   int
	peers    int
	health   map[string]error
}

func (f *fakeState) Clusters() ([]types.Cluster, error) { return f.clusters, nil }
func (f *fakeState) TokenCount() int                    { return f.tokens }
func (f *fakeState) PeerCount() (int, error)            { return f.peers, nil }
func (f *fakeState) CheckHealth() map[string]error      { return f.health }

func TestCollectorCollect(t *testing.T) {
	resetHealth("")

	src := &fakeState{
		clusters: []types.Cluster{
			{Name: "dwarf8", Nodes: []string{"cat8", "ace8"}},
			{Name: "other", Nodes: []string{"ace8", "bee8"}},
		},
		tokens: 4,
		peers:  2,
		health: map[string]error{
			ComponentCredentialStore: nil,
			ComponentClusterRegistry: errors.New("clusters.conf is corrupt"),
		},
	}

	NewCollector(src, 0).Collect()

	assert.Equal(t, float64(2), testutil.ToFloat64(ClustersTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(ClusterNodesTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(TokensTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(PeersTotal))

	health := GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "healthy", health.Components[ComponentCredentialStore])
	assert.Equal(t, "unhealthy: clusters.conf is corrupt", health.Components[ComponentClusterRegistry])
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(&fakeState{}, 0)
	assert.Equal(t, defaultInterval, c.interval)

	c.Start()
	c.Stop()
}
