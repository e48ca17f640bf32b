package keyspace

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
)

// fakeAPI is an in-memory etcd behind the API interface
type fakeAPI struct {
	mu      sync.Mutex
	kv      map[string]string
	fail    error
	block   chan struct{}
	calls   map[string]int
	lastCtx context.Context
	lastErr error
}

func newFakeAPI(kv map[string]string) *fakeAPI {
	if kv == nil {
		kv = make(map[string]string)
	}
	return &fakeAPI{kv: kv, calls: make(map[string]int)}
}

func (f *fakeAPI) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	f.lastCtx = ctx
	f.lastErr = ctx.Err()
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func (f *fakeAPI) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
}

func (f *fakeAPI) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.kv, key)
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) ListKeys(ctx context.Context, clusterID int64, opts types.ScanOptions) (types.KeyListing, error) {
	if err := f.enter(ctx, "list"); err != nil {
		return types.KeyListing{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.kv))
	for k := range f.kv {
		var match bool
		if opts.RangeEnd == "" {
			match = strings.HasPrefix(k, opts.Prefix)
		} else {
			match = k >= opts.Prefix && (opts.RangeEnd == "\x00" || k < opts.RangeEnd)
		}
		if match {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	records := make([]types.KeyRecord, 0, len(keys))
	for _, k := range keys {
		r := types.KeyRecord{Key: k}
		if !opts.KeysOnly {
			r.Value = f.kv[k]
			r.HasValue = true
		}
		records = append(records, r)
	}
	return types.KeyListing{
		Records:   records,
		Count:     len(records),
		Truncated: opts.Limit > 0 && len(records) >= opts.Limit,
	}, nil
}

func (f *fakeAPI) RemoteTree(ctx context.Context, clusterID int64, prefix string, limit int) ([]types.RemoteTreeNode, int, error) {
	if err := f.enter(ctx, "tree"); err != nil {
		return nil, 0, err
	}
	return []types.RemoteTreeNode{{Key: "/a", Name: "a", IsDir: true}}, 1, nil
}

func (f *fakeAPI) GetValue(ctx context.Context, clusterID int64, key string) (types.KeyRecord, error) {
	if err := f.enter(ctx, "get"); err != nil {
		return types.KeyRecord{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return types.KeyRecord{}, &transport.Error{Kind: transport.ErrNotFound, StatusCode: 404}
	}
	return types.KeyRecord{Key: key, Value: v, HasValue: true}, nil
}

func (f *fakeAPI) PutValue(ctx context.Context, clusterID int64, key, value string) error {
	if err := f.enter(ctx, "put"); err != nil {
		return err
	}
	f.set(key, value)
	return nil
}

func (f *fakeAPI) DeleteKey(ctx context.Context, clusterID int64, key string, prefix bool) error {
	if err := f.enter(ctx, "delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.kv {
		if k == key || (prefix && strings.HasPrefix(k, key)) {
			delete(f.kv, k)
		}
	}
	return nil
}

func (f *fakeAPI) Health(ctx context.Context, clusterID int64) (*types.EtcdHealth, error) {
	if err := f.enter(ctx, "health"); err != nil {
		return nil, err
	}
	return &types.EtcdHealth{
		Healthy:   true,
		Endpoints: []types.EndpointHealth{{Endpoint: "https://127.0.0.1:2379", Health: true, Took: "1ms"}},
	}, nil
}
