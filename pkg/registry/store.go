package registry

import (
	"context"
	"sync"

	"github.com/cuemby/kvdeck/pkg/types"
)

// API is the part of Client the Store needs
type API interface {
	List(ctx context.Context) ([]types.Cluster, error)
	Get(ctx context.Context, id int64) (*types.Cluster, error)
	Create(ctx context.Context, in types.ClusterInput) (*types.Cluster, error)
	Update(ctx context.Context, id int64, in types.ClusterInput) (*types.Cluster, error)
	Delete(ctx context.Context, id int64) error
}

// Store caches the cluster list and the cluster being looked at, and
// keeps the list in step with the mutations made through it
type Store struct {
	api API

	mu       sync.RWMutex
	clusters []types.Cluster
	current  *types.Cluster
	loaded   bool
}

// NewStore creates an empty store
func NewStore(api API) *Store {
	return &Store{api: api}
}

// Refresh reloads the cluster list. On failure the cached list is kept.
func (s *Store) Refresh(ctx context.Context) ([]types.Cluster, error) {
	clusters, err := s.api.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clusters = append([]types.Cluster(nil), clusters...)
	s.loaded = true
	s.mu.Unlock()

	return s.Clusters(), nil
}

// Loaded reports whether the list has been fetched at least once
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Clusters returns a copy of the cached list
func (s *Store) Clusters() []types.Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Cluster(nil), s.clusters...)
}

// Active returns the cached clusters that are marked active
func (s *Store) Active() []types.Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []types.Cluster
	for _, c := range s.clusters {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active
}

// Current returns the cluster last fetched with Fetch
func (s *Store) Current() *types.Cluster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// Fetch loads one cluster and makes it current
func (s *Store) Fetch(ctx context.Context, id int64) (*types.Cluster, error) {
	cluster, err := s.api.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	c := *cluster
	s.current = &c
	s.mu.Unlock()
	return cluster, nil
}

// Create registers a cluster and appends it to the list
func (s *Store) Create(ctx context.Context, in types.ClusterInput) (*types.Cluster, error) {
	cluster, err := s.api.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clusters = append(s.clusters, *cluster)
	s.mu.Unlock()
	return cluster, nil
}

// Update patches a cluster and replaces its cached entry
func (s *Store) Update(ctx context.Context, id int64, in types.ClusterInput) (*types.Cluster, error) {
	cluster, err := s.api.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.clusters {
		if s.clusters[i].ID == id {
			s.clusters[i] = mergeCluster(s.clusters[i], *cluster)
		}
	}
	if s.current != nil && s.current.ID == id {
		merged := mergeCluster(*s.current, *cluster)
		s.current = &merged
	}
	return cluster, nil
}

// Delete removes a cluster from the server and the cache
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.clusters[:0]
	for _, c := range s.clusters {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.clusters = kept
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	return nil
}

// mergeCluster applies an update reply onto the cached record. Update
// replies omit the read-only fields, which are kept from the cache.
func mergeCluster(cached, updated types.Cluster) types.Cluster {
	if updated.CreatedAt.IsZero() {
		updated.CreatedAt = cached.CreatedAt
	}
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = cached.UpdatedAt
	}
	if updated.CreatedByUsername == "" {
		updated.CreatedByUsername = cached.CreatedByUsername
	}
	return updated
}
