package storage

import (
	"errors"
	"time"
)

// ErrPeerNotFound is returned when no token is stored for a peer node
var ErrPeerNotFound = errors.New("peer not found")

// Peer is a node this instance has authenticated against
type Peer struct {
	Node            string    `json:"node"`
	Token           string    `json:"token"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// PeerStore persists the tokens used for outbound calls to other nodes
type PeerStore interface {
	GetPeer(node string) (*Peer, error)
	PutPeer(peer *Peer) error
	DeletePeer(node string) error
	ListPeers() ([]*Peer, error)

	// Utility
	Close() error
}
