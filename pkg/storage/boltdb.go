package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPeers = []byte("peers")
)

// BoltStore implements PeerStore using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the peer database at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPeers); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketPeers, err)
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Peer operations
func (s *BoltStore) PutPeer(peer *Peer) error {
	if peer.Node == "" {
		return fmt.Errorf("peer node name is empty")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		data, err := json.Marshal(peer)
		if err != nil {
			return err
		}
		return b.Put([]byte(peer.Node), data)
	})
}

func (s *BoltStore) GetPeer(node string) (*Peer, error) {
	var peer Peer
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		data := b.Get([]byte(node))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrPeerNotFound, node)
		}
		return json.Unmarshal(data, &peer)
	})
	if err != nil {
		return nil, err
	}
	return &peer, nil
}

func (s *BoltStore) ListPeers() ([]*Peer, error) {
	var peers []*Peer
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		return b.ForEach(func(k, v []byte) error {
			var peer Peer
			if err := json.Unmarshal(v, &peer); err != nil {
				return err
			}
			peers = append(peers, &peer)
			return nil
		})
	})
	return peers, err
}

func (s *BoltStore) DeletePeer(node string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeers)
		return b.Delete([]byte(node))
	})
}

// Token returns the stored token for node, or "" when none is known.
// It lets a BoltStore serve directly as the RPC client's token source.
func (s *BoltStore) Token(node string) string {
	peer, err := s.GetPeer(node)
	if err != nil {
		return ""
	}
	return peer.Token
}
