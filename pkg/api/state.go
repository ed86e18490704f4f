package api

import (
	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/metrics"
	"github.com/cuemby/pcsd/pkg/registry"
	"github.com/cuemby/pcsd/pkg/storage"
	"github.com/cuemby/pcsd/pkg/types"
)

// State exposes the daemon's persisted state to the metrics collector
type State struct {
	Credentials *auth.CredentialStore
	Registry    *registry.Registry
	Peers       storage.PeerStore
}

var _ metrics.StateSource = (*State)(nil)

// Clusters returns the registered clusters
func (s *State) Clusters() ([]types.Cluster, error) {
	return s.Registry.Load(), nil
}

// TokenCount returns the number of stored token records
func (s *State) TokenCount() int {
	return len(s.Credentials.Tokens())
}

// PeerCount returns the number of peers with a stored token
func (s *State) PeerCount() (int, error) {
	peers, err := s.Peers.ListPeers()
	if err != nil {
		return 0, err
	}
	return len(peers), nil
}

// CheckHealth reports the health of each store
func (s *State) CheckHealth() map[string]error {
	_, peerErr := s.Peers.ListPeers()
	return map[string]error{
		metrics.ComponentCredentialStore: s.Credentials.Healthy(),
		metrics.ComponentClusterRegistry: s.Registry.Healthy(),
		metrics.ComponentPeerStore:       peerErr,
	}
}
