package keyspace

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/rs/zerolog"
)

// ClusterResolver looks clusters up in the registry. registry.Client
// implements it.
type ClusterResolver interface {
	Get(ctx context.Context, id int64) (*types.Cluster, error)
	GetStatus(ctx context.Context, id int64) (*types.ClusterStatus, error)
}

// WorkspaceOptions configure a Workspace
type WorkspaceOptions struct {
	Options

	// ResolveStatus fetches the connection state on every selection
	ResolveStatus bool
}

// Workspace holds the browser of the selected cluster. Selecting another
// cluster replaces the browser and with it every cached key.
type Workspace struct {
	api      API
	clusters ClusterResolver
	opts     WorkspaceOptions
	logger   zerolog.Logger

	mu      sync.RWMutex
	browser *Browser
	status  *types.ClusterStatus
}

// NewWorkspace creates a workspace with no cluster selected
func NewWorkspace(api API, clusters ClusterResolver, opts WorkspaceOptions) *Workspace {
	w := &Workspace{
		api:      api,
		clusters: clusters,
		opts:     opts,
	}
	if opts.Logger != nil {
		w.logger = *opts.Logger
	} else {
		w.logger = log.WithComponent("keyspace")
	}
	if w.opts.Events == nil {
		w.opts.Events = events.Discard
	}
	return w
}

// Select binds the workspace to a cluster. Inactive clusters are
// rejected with ErrClusterInactive. A failed status lookup is logged and
// does not prevent the selection.
func (w *Workspace) Select(ctx context.Context, clusterID int64) (*Browser, error) {
	cluster, err := w.clusters.Get(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cluster %d: %w", clusterID, err)
	}
	if !cluster.IsActive {
		return nil, fmt.Errorf("%w: %s (%d)", ErrClusterInactive, cluster.Name, cluster.ID)
	}

	logger := log.WithClusterID(w.logger, cluster.ID)

	var status *types.ClusterStatus
	if w.opts.ResolveStatus {
		status, err = w.clusters.GetStatus(ctx, clusterID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("failed to fetch cluster status")
			status = nil
		case !status.IsConnected:
			ev := logger.Warn()
			if status.Error != nil {
				ev = ev.Str("error", *status.Error)
			}
			ev.Msg("cluster reports no connection")
		}
	}

	browser := NewBrowser(w.api, *cluster, w.opts.Options)

	w.mu.Lock()
	w.browser = browser
	w.status = status
	w.mu.Unlock()

	logger.Debug().Str("name", cluster.Name).Msg("cluster selected")
	w.opts.Events.Publish(events.New(events.EventClusterSelected, "cluster selected", map[string]string{
		"cluster_id": strconv.FormatInt(cluster.ID, 10),
		"name":       cluster.Name,
	}))
	return browser, nil
}

// Browser returns the browser of the selected cluster
func (w *Workspace) Browser() (*Browser, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.browser == nil {
		return nil, ErrNoCluster
	}
	return w.browser, nil
}

// Status returns the connection state fetched at selection, if any
func (w *Workspace) Status() *types.ClusterStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.status == nil {
		return nil
	}
	s := *w.status
	return &s
}

// Clear drops the selection
func (w *Workspace) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.browser = nil
	w.status = nil
}
