package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/rs/zerolog"
)

// Client manages cluster connection records on the management API
type Client struct {
	transport *transport.Client
	logger    zerolog.Logger
}

// NewClient creates a registry client
func NewClient(t *transport.Client, logger *zerolog.Logger) *Client {
	c := &Client{transport: t}
	if logger != nil {
		c.logger = *logger
	} else {
		c.logger = log.WithComponent("registry")
	}
	return c
}

func clusterPath(id int64, action string) string {
	p := "/clusters/" + strconv.FormatInt(id, 10) + "/"
	if action != "" {
		p += action + "/"
	}
	return p
}

// List returns every registered cluster. Both a bare array and a
// paginated {"results": [...]} body are accepted.
func (c *Client) List(ctx context.Context) ([]types.Cluster, error) {
	var raw json.RawMessage
	if err := c.transport.Get(ctx, "/clusters/", nil, &raw); err != nil {
		return nil, err
	}
	return decodeClusterList(raw)
}

func decodeClusterList(raw []byte) ([]types.Cluster, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []types.Cluster{}, nil
	}

	var clusters []types.Cluster
	if raw[0] == '[' {
		if err := sonic.ConfigStd.Unmarshal(raw, &clusters); err != nil {
			return nil, fmt.Errorf("%w: failed to decode cluster list: %v", transport.ErrTransport, err)
		}
		return clusters, nil
	}

	var page struct {
		Count   int             `json:"count"`
		Results []types.Cluster `json:"results"`
	}
	if err := sonic.ConfigStd.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("%w: failed to decode cluster page: %v", transport.ErrTransport, err)
	}
	if page.Results == nil {
		page.Results = []types.Cluster{}
	}
	return page.Results, nil
}

// Get returns one cluster
func (c *Client) Get(ctx context.Context, id int64) (*types.Cluster, error) {
	var cluster types.Cluster
	if err := c.transport.Get(ctx, clusterPath(id, ""), nil, &cluster); err != nil {
		return nil, err
	}
	return &cluster, nil
}

// Create registers a cluster. Name and kubeconfig are required.
func (c *Client) Create(ctx context.Context, in types.ClusterInput) (*types.Cluster, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: cluster name is required", transport.ErrValidation)
	}
	if in.Kubeconfig == "" {
		return nil, fmt.Errorf("%w: kubeconfig is required", transport.ErrValidation)
	}
	if err := ValidateKubeconfigLocal(in.Kubeconfig); err != nil {
		return nil, err
	}

	var cluster types.Cluster
	if err := c.transport.Post(ctx, "/clusters/", in, &cluster); err != nil {
		return nil, err
	}
	c.logger.Info().Int64("cluster_id", cluster.ID).Str("name", cluster.Name).Msg("cluster registered")
	return &cluster, nil
}

// Update patches a cluster. Empty fields are left unchanged.
func (c *Client) Update(ctx context.Context, id int64, in types.ClusterInput) (*types.Cluster, error) {
	if in.Kubeconfig != "" {
		if err := ValidateKubeconfigLocal(in.Kubeconfig); err != nil {
			return nil, err
		}
	}

	var cluster types.Cluster
	if err := c.transport.Patch(ctx, clusterPath(id, ""), in, &cluster); err != nil {
		return nil, err
	}
	return &cluster, nil
}

// Delete removes a cluster
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.transport.Delete(ctx, clusterPath(id, ""), nil, nil); err != nil {
		return err
	}
	c.logger.Info().Int64("cluster_id", id).Msg("cluster deleted")
	return nil
}

// GetStatus asks the server to check the cluster's connection
func (c *Client) GetStatus(ctx context.Context, id int64) (*types.ClusterStatus, error) {
	var status types.ClusterStatus
	if err := c.transport.Get(ctx, clusterPath(id, "status"), nil, &status); err != nil {
		return nil, err
	}
	status.CheckedAt = time.Now()
	return &status, nil
}

// TestConnection runs a one-shot connection test. A failed test is a
// result, not an error.
func (c *Client) TestConnection(ctx context.Context, id int64) (*types.ConnectionResult, error) {
	var result types.ConnectionResult
	err := c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: clusterPath(id, "test_connection")}, &result)

	var te *transport.Error
	if errors.Is(err, transport.ErrValidation) && errors.As(err, &te) {
		return &types.ConnectionResult{Success: false, Message: te.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ValidateKubeconfig checks the blob locally, then on the server
func (c *Client) ValidateKubeconfig(ctx context.Context, kubeconfig string) (*types.KubeconfigValidation, error) {
	if err := ValidateKubeconfigLocal(kubeconfig); err != nil {
		return nil, err
	}

	var result types.KubeconfigValidation
	body := map[string]string{"kubeconfig": kubeconfig}
	if err := c.transport.Post(ctx, "/clusters/validate_kubeconfig/", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListConnections returns the connection log, optionally for one cluster
// (clusterID 0 lists all)
func (c *Client) ListConnections(ctx context.Context, clusterID int64) ([]types.ClusterConnection, error) {
	var query url.Values
	if clusterID != 0 {
		query = url.Values{"cluster_id": {strconv.FormatInt(clusterID, 10)}}
	}

	var raw json.RawMessage
	if err := c.transport.Get(ctx, "/clusters/connections/", query, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	var conns []types.ClusterConnection
	if len(raw) > 0 && raw[0] == '{' {
		var page struct {
			Results []types.ClusterConnection `json:"results"`
		}
		if err := sonic.ConfigStd.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("%w: failed to decode connections: %v", transport.ErrTransport, err)
		}
		return page.Results, nil
	}
	if err := sonic.ConfigStd.Unmarshal(raw, &conns); err != nil {
		return nil, fmt.Errorf("%w: failed to decode connections: %v", transport.ErrTransport, err)
	}
	return conns, nil
}
