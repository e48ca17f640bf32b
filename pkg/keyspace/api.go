package keyspace

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
)

// API is the remote etcd surface of one management server
type API interface {
	ListKeys(ctx context.Context, clusterID int64, opts types.ScanOptions) (types.KeyListing, error)
	RemoteTree(ctx context.Context, clusterID int64, prefix string, limit int) ([]types.RemoteTreeNode, int, error)
	GetValue(ctx context.Context, clusterID int64, key string) (types.KeyRecord, error)
	PutValue(ctx context.Context, clusterID int64, key, value string) error
	DeleteKey(ctx context.Context, clusterID int64, key string, prefix bool) error
	Health(ctx context.Context, clusterID int64) (*types.EtcdHealth, error)
}

// HTTPAPI implements API over the /etcd endpoints
type HTTPAPI struct {
	transport *transport.Client
}

// NewHTTPAPI creates an API backed by t
func NewHTTPAPI(t *transport.Client) *HTTPAPI {
	return &HTTPAPI{transport: t}
}

// envelope is the status part every etcd reply carries. The server
// answers etcdctl failures with success=false, sometimes on a 200.
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (e envelope) check(method, path string) error {
	if e.Success == nil || *e.Success {
		return nil
	}
	msg := strings.TrimSpace(e.Error)
	if msg == "" {
		msg = "etcd command failed"
	}
	return &transport.Error{
		Method:     method,
		Path:       path,
		StatusCode: http.StatusOK,
		Message:    msg,
		Kind:       transport.ErrRemote,
	}
}

func etcdPath(clusterID int64, endpoint string) string {
	return "/etcd/" + strconv.FormatInt(clusterID, 10) + "/" + endpoint + "/"
}

type kvPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type keysReply struct {
	envelope
	Keys  []string `json:"keys"`
	KVs   []kvPair `json:"kvs"`
	Count int      `json:"count"`
}

func (a *HTTPAPI) ListKeys(ctx context.Context, clusterID int64, opts types.ScanOptions) (types.KeyListing, error) {
	path := etcdPath(clusterID, "keys")
	query := url.Values{
		"prefix":    {opts.Prefix},
		"limit":     {strconv.Itoa(opts.Limit)},
		"keys_only": {strconv.FormatBool(opts.KeysOnly)},
	}
	if opts.RangeEnd != "" {
		query.Set("range_end", opts.RangeEnd)
	}

	var reply keysReply
	if err := a.transport.Get(ctx, path, query, &reply); err != nil {
		return types.KeyListing{}, err
	}
	if err := reply.check(http.MethodGet, path); err != nil {
		return types.KeyListing{}, err
	}

	var records []types.KeyRecord
	if len(reply.KVs) > 0 {
		records = make([]types.KeyRecord, 0, len(reply.KVs))
		for _, kv := range reply.KVs {
			records = append(records, types.KeyRecord{Key: kv.Key, Value: kv.Value, HasValue: true})
		}
	} else {
		records = make([]types.KeyRecord, 0, len(reply.Keys))
		for _, k := range reply.Keys {
			records = append(records, types.KeyRecord{Key: k})
		}
	}

	count := reply.Count
	if count < len(records) {
		count = len(records)
	}
	return types.KeyListing{
		Records:   records,
		Count:     count,
		Truncated: opts.Limit > 0 && len(records) >= opts.Limit,
	}, nil
}

func (a *HTTPAPI) RemoteTree(ctx context.Context, clusterID int64, prefix string, limit int) ([]types.RemoteTreeNode, int, error) {
	path := etcdPath(clusterID, "tree")
	query := url.Values{"prefix": {prefix}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var reply struct {
		envelope
		Tree  []types.RemoteTreeNode `json:"tree"`
		Count int                    `json:"count"`
	}
	if err := a.transport.Get(ctx, path, query, &reply); err != nil {
		return nil, 0, err
	}
	if err := reply.check(http.MethodGet, path); err != nil {
		return nil, 0, err
	}
	return reply.Tree, reply.Count, nil
}

func (a *HTTPAPI) GetValue(ctx context.Context, clusterID int64, key string) (types.KeyRecord, error) {
	path := etcdPath(clusterID, "kv")

	var reply struct {
		envelope
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := a.transport.Get(ctx, path, url.Values{"key": {key}}, &reply); err != nil {
		return types.KeyRecord{}, err
	}
	if err := reply.check(http.MethodGet, path); err != nil {
		return types.KeyRecord{}, err
	}

	// etcdctl --print-value-only terminates the value with a newline
	value := strings.TrimSuffix(reply.Value, "\n")
	return types.KeyRecord{Key: key, Value: value, HasValue: true}, nil
}

func (a *HTTPAPI) PutValue(ctx context.Context, clusterID int64, key, value string) error {
	path := etcdPath(clusterID, "kv")

	var reply envelope
	body := map[string]string{"key": key, "value": value}
	if err := a.transport.Post(ctx, path, body, &reply); err != nil {
		return err
	}
	return reply.check(http.MethodPost, path)
}

func (a *HTTPAPI) DeleteKey(ctx context.Context, clusterID int64, key string, prefix bool) error {
	path := etcdPath(clusterID, "kv")

	var reply envelope
	body := map[string]any{"key": key, "prefix": prefix}
	if err := a.transport.Delete(ctx, path, body, &reply); err != nil {
		return err
	}
	return reply.check(http.MethodDelete, path)
}

func (a *HTTPAPI) Health(ctx context.Context, clusterID int64) (*types.EtcdHealth, error) {
	path := etcdPath(clusterID, "health")

	var reply struct {
		envelope
		Health  json.RawMessage `json:"health"`
		Status  json.RawMessage `json:"status"`
		Members json.RawMessage `json:"members"`
	}
	if err := a.transport.Get(ctx, path, nil, &reply); err != nil {
		return nil, err
	}
	if err := reply.check(http.MethodGet, path); err != nil {
		return nil, err
	}

	health := &types.EtcdHealth{
		Endpoints: decodeEndpoints(reply.Health),
		Status:    reply.Status,
		Members:   decodeMembers(reply.Members),
	}
	health.Healthy = len(health.Endpoints) > 0
	for _, ep := range health.Endpoints {
		if !ep.Health {
			health.Healthy = false
		}
	}
	return health, nil
}

// decodeEndpoints accepts the etcdctl "endpoint health -w json" array.
// Unparsed output (a plain string) yields no endpoints.
func decodeEndpoints(raw json.RawMessage) []types.EndpointHealth {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var endpoints []types.EndpointHealth
	if err := sonic.ConfigStd.Unmarshal(raw, &endpoints); err != nil {
		return nil
	}
	return endpoints
}

// decodeMembers accepts both the etcdctl "member list -w json" object and
// a bare member array
func decodeMembers(raw json.RawMessage) []types.Member {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var members []types.Member
	switch raw[0] {
	case '[':
		if err := sonic.ConfigStd.Unmarshal(raw, &members); err != nil {
			return nil
		}
	case '{':
		var list struct {
			Members []types.Member `json:"members"`
		}
		if err := sonic.ConfigStd.Unmarshal(raw, &list); err != nil {
			return nil
		}
		members = list.Members
	}
	return members
}
