// Package registry persists the clusters this pcsd instance knows about.
//
// The registry is a flat JSON array of {name, nodes} records. Every
// operation loads the whole file, works on the in-memory list and rewrites
// the file; there is no incremental update. A missing or corrupt file reads
// as an empty registry.
package registry

import (
	"errors"
	"fmt"

	"github.com/cuemby/pcsd/pkg/storage"
	"github.com/cuemby/pcsd/pkg/types"
)

// ErrClusterNotFound is returned when a named cluster is not registered
var ErrClusterNotFound = errors.New("cluster not found")

// Registry is the cluster list backed by clusters.conf
type Registry struct {
	file *storage.JSONFile[[]types.Cluster]
}

// New returns a registry backed by path
func New(path string) *Registry {
	return &Registry{file: storage.NewJSONFile[[]types.Cluster](path)}
}

// Path returns the backing file location
func (r *Registry) Path() string {
	return r.file.Path()
}

// Healthy reports whether the backing file is absent or parses cleanly
func (r *Registry) Healthy() error {
	_, err := r.file.Load()
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	return err
}

// Load returns every registered cluster in file order
func (r *Registry) Load() []types.Cluster {
	clusters := r.file.LoadOrEmpty()
	if clusters == nil {
		return []types.Cluster{}
	}
	return clusters
}

// Save replaces the registry with clusters. Concurrent Save calls are
// serialized; the last one wins.
func (r *Registry) Save(clusters []types.Cluster) error {
	if clusters == nil {
		clusters = []types.Cluster{}
	}
	return r.file.Save(clusters)
}

// Update applies fn to the current registry and saves the result under the
// writer lock, so concurrent updates do not lose each other's changes
func (r *Registry) Update(fn func([]types.Cluster) ([]types.Cluster, error)) error {
	return r.file.Update(func(clusters []types.Cluster) ([]types.Cluster, error) {
		next, err := fn(clusters)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []types.Cluster{}
		}
		return next, nil
	})
}

// Remove returns clusters without the one named name. Unknown names leave
// the list unchanged.
func Remove(clusters []types.Cluster, name string) []types.Cluster {
	out := make([]types.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}

// Add registers c, replacing a cluster with the same name in place
func (r *Registry) Add(c types.Cluster) error {
	if c.Name == "" {
		return fmt.Errorf("cluster name is required")
	}
	c.Nodes = uniqueNodes(c.Nodes)
	if len(c.Nodes) == 0 {
		return fmt.Errorf("cluster %s: at least one node is required", c.Name)
	}

	return r.Update(func(clusters []types.Cluster) ([]types.Cluster, error) {
		for i := range clusters {
			if clusters[i].Name == c.Name {
				clusters[i] = c
				return clusters, nil
			}
		}
		return append(clusters, c), nil
	})
}

// RemoveCluster drops the cluster named name and reports whether it existed
func (r *Registry) RemoveCluster(name string) (bool, error) {
	var found bool
	err := r.Update(func(clusters []types.Cluster) ([]types.Cluster, error) {
		next := Remove(clusters, name)
		found = len(next) != len(clusters)
		return next, nil
	})
	return found, err
}

// Get returns the cluster named name
func (r *Registry) Get(name string) (types.Cluster, bool) {
	for _, c := range r.Load() {
		if c.Name == name {
			return c, true
		}
	}
	return types.Cluster{}, false
}

// Nodes returns the nodes of the cluster named name
func (r *Registry) Nodes(name string) ([]string, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, name)
	}
	return c.Nodes, nil
}

// AllNodes returns the nodes of every cluster in registry order without
// duplicates
func (r *Registry) AllNodes() []string {
	var nodes []string
	for _, c := range r.Load() {
		nodes = append(nodes, c.Nodes...)
	}
	return uniqueNodes(nodes)
}

func uniqueNodes(nodes []string) []string {
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
