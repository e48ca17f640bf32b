package types

import (
	"encoding/json"
	"time"
)

// User is the identity record returned by the management API
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// Credentials are submitted to the login endpoint
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Cluster is a registered Kubernetes cluster connection record
type Cluster struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	CreatedByUsername string    `json:"created_by_username,omitempty"`
}

// ClusterInput is the create/update payload for a cluster.
// Kubeconfig is write-only: the API never returns it.
type ClusterInput struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Kubeconfig  string `json:"kubeconfig,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// ClusterStatus is the connection state reported for a cluster
type ClusterStatus struct {
	ClusterID   int64   `json:"cluster_id"`
	ClusterName string  `json:"cluster_name"`
	IsConnected bool    `json:"is_connected"`
	Version     *string `json:"version"`
	NodesCount  *int    `json:"nodes_count"`
	Error       *string `json:"error"`

	// CheckedAt is stamped client-side when the status was fetched
	CheckedAt time.Time `json:"-"`
}

// ConnectionResult is the outcome of a connection test
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// KubeconfigValidation is the outcome of a kubeconfig validation
type KubeconfigValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ClusterConnection is one entry of a cluster's connection log
type ClusterConnection struct {
	ID           int64     `json:"id"`
	Cluster      int64     `json:"cluster"`
	ClusterName  string    `json:"cluster_name"`
	User         *int64    `json:"user"`
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connected_at"`
	Status       string    `json:"status"` // "success" or "failed"
	ErrorMessage string    `json:"error_message"`
}

// KeyRecord is a single etcd key, optionally with its value
type KeyRecord struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`

	// HasValue is false when the record came from a keys-only listing
	HasValue bool `json:"-"`
}

// ScanOptions filter a key listing
type ScanOptions struct {
	// Prefix selects every key starting with it. With RangeEnd set it is
	// the inclusive range start instead.
	Prefix string

	// RangeEnd selects the half-open range [Prefix, RangeEnd)
	RangeEnd string

	// Limit caps the number of returned keys (1..1000)
	Limit int

	// KeysOnly skips values
	KeysOnly bool
}

// DefaultScanOptions mirrors the API defaults
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Prefix:   "/",
		Limit:    100,
		KeysOnly: true,
	}
}

// KeyListing is the result of a key listing
type KeyListing struct {
	Records []KeyRecord
	Count   int

	// Truncated is true when the listing stopped at the requested limit
	Truncated bool
}

// RemoteTreeNode is one node of the outline computed by the API server
type RemoteTreeNode struct {
	Key      string           `json:"key"`
	Name     string           `json:"name"`
	IsDir    bool             `json:"is_dir"`
	Children []RemoteTreeNode `json:"children,omitempty"`
}

// EndpointHealth is the health of a single etcd endpoint
type EndpointHealth struct {
	Endpoint string `json:"endpoint"`
	Health   bool   `json:"health"`
	Took     string `json:"took"`
	Error    string `json:"error,omitempty"`
}

// Member is an etcd cluster member
type Member struct {
	ID         uint64   `json:"ID"`
	Name       string   `json:"name"`
	PeerURLs   []string `json:"peerURLs"`
	ClientURLs []string `json:"clientURLs"`
}

// EtcdHealth is the liveness report of a cluster's etcd
type EtcdHealth struct {
	Healthy   bool
	Endpoints []EndpointHealth
	Status    json.RawMessage
	Members   []Member

	// Latency is the client-observed round trip of the probe
	Latency   time.Duration
	CheckedAt time.Time
}
