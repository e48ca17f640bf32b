package keyspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCluster = types.Cluster{ID: 3, Name: "staging", IsActive: true}

func newTestBrowser(t *testing.T, kv map[string]string) (*Browser, *fakeAPI) {
	t.Helper()
	api := newFakeAPI(kv)
	return NewBrowser(api, testCluster, Options{}), api
}

func keysOf(records []types.KeyRecord) []string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key)
	}
	return keys
}

func listAll(t *testing.T, b *Browser) {
	t.Helper()
	_, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/", Limit: MaxListLimit})
	require.NoError(t, err)
}

func TestListKeysPopulatesCacheAndTree(t *testing.T) {
	b, _ := newTestBrowser(t, map[string]string{
		"/registry/pods/nginx": "p",
		"/registry/services/k": "s",
		"/other":               "o",
	})

	listing, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/registry/", KeysOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, listing.Count)
	assert.False(t, listing.Truncated)

	assert.Equal(t, []string{"/registry/pods/nginx", "/registry/services/k"}, keysOf(b.Records()))
	assert.Equal(t, 2, b.Tree().Len())
	assert.NotNil(t, b.Tree().Find("/registry/pods/nginx"))
	assert.Nil(t, b.Tree().Find("/other"))
}

func TestListKeysReplacesScope(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{
		"/app/a": "1",
		"/app/b": "2",
		"/db/x":  "3",
	})
	listAll(t, b)
	require.Equal(t, 3, b.Len())

	api.remove("/app/a")
	api.set("/app/c", "4")
	api.remove("/db/x")

	_, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/app/"})
	require.NoError(t, err)

	// /db/x is outside the listed scope so it stays cached
	assert.Equal(t, []string{"/app/b", "/app/c", "/db/x"}, keysOf(b.Records()))
	assert.Equal(t, b.Records(), b.Tree().Records())
}

func TestListKeysTruncatedOnlyVouchesUpToLastKey(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{
		"/k1": "", "/k2": "", "/k3": "", "/k4": "",
	})
	listAll(t, b)

	api.remove("/k1")
	api.remove("/k4")

	listing, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/", Limit: 2})
	require.NoError(t, err)
	assert.True(t, listing.Truncated)
	assert.Equal(t, []string{"/k2", "/k3"}, keysOf(listing.Records))

	// /k1 is dropped, /k4 lies past the page so it is not contradicted
	assert.Equal(t, []string{"/k2", "/k3", "/k4"}, keysOf(b.Records()))
}

func TestListKeysRange(t *testing.T) {
	b, _ := newTestBrowser(t, map[string]string{
		"/a": "", "/b": "", "/c": "", "/d": "",
	})

	listing, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/b", RangeEnd: "/d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/b", "/c"}, keysOf(listing.Records))

	listing, err = b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/c", RangeEnd: "\x00"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/c", "/d"}, keysOf(listing.Records))
}

func TestListKeysFailureLeavesCache(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{"/a": "1", "/b": "2"})
	listAll(t, b)
	before := b.Tree()
	beforeRecords := b.Records()

	api.fail = &transport.Error{Kind: transport.ErrTransport, Err: errors.New("connection refused")}
	_, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "/"})
	require.ErrorIs(t, err, transport.ErrTransport)

	assert.Same(t, before, b.Tree())
	assert.Equal(t, beforeRecords, b.Records())
}

func TestListKeysDiscardedWhenCallerGaveUp(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{"/a": "1"})
	api.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.ListKeys(ctx, types.ScanOptions{Prefix: "/"})
		done <- err
	}()

	require.Eventually(t, func() bool { return api.count("list") == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(api.block)

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Len())
}

func TestListKeysValidation(t *testing.T) {
	b, api := newTestBrowser(t, nil)

	tests := []struct {
		name string
		opts types.ScanOptions
	}{
		{name: "negative limit", opts: types.ScanOptions{Prefix: "/", Limit: -1}},
		{name: "limit too large", opts: types.ScanOptions{Prefix: "/", Limit: MaxListLimit + 1}},
		{name: "inverted range", opts: types.ScanOptions{Prefix: "/b", RangeEnd: "/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.ListKeys(context.Background(), tt.opts)
			assert.ErrorIs(t, err, transport.ErrValidation)
		})
	}
	assert.Equal(t, 0, api.count("list"))
}

func TestNormalizeScanDefaults(t *testing.T) {
	opts, err := normalizeScan(types.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/", opts.Prefix)
	assert.Equal(t, 100, opts.Limit)
}

// cachedRecord reads key from the tree, which always mirrors the cache
func cachedRecord(b *Browser, key string) (types.KeyRecord, bool) {
	n := b.Tree().Find(key)
	if n == nil || n.Record == nil {
		return types.KeyRecord{}, false
	}
	return *n.Record, true
}

func TestPutValueUpserts(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{"/a": "old"})
	listAll(t, b)

	require.NoError(t, b.PutValue(context.Background(), "/a", "new"))
	require.NoError(t, b.PutValue(context.Background(), "/a/b", "child"))

	rec, ok := cachedRecord(b, "/a")
	require.True(t, ok)
	assert.Equal(t, "new", rec.Value)
	assert.True(t, rec.HasValue)

	a := b.Tree().Find("/a")
	require.NotNil(t, a)
	assert.True(t, a.IsDual())
	assert.Equal(t, "child", a.Children["b"].Record.Value)

	assert.Equal(t, 2, api.count("put"))
	assert.Equal(t, 2, b.Len())
}

func TestPutValueFailureLeavesCacheAndTree(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{"/a": "1", "/a/b": "2"})
	listAll(t, b)
	beforeTree := b.Tree()
	beforeRecords := b.Records()

	api.fail = &transport.Error{Kind: transport.ErrTransport, Err: errors.New("connection reset")}
	err := b.PutValue(context.Background(), "/x", "v")
	require.ErrorIs(t, err, transport.ErrTransport)

	assert.Same(t, beforeTree, b.Tree())
	assert.Equal(t, beforeRecords, b.Records())
	assert.Nil(t, b.Tree().Find("/x"))
}

func TestMutationsSurviveCallerCancellation(t *testing.T) {
	b, api := newTestBrowser(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, b.PutValue(ctx, "/a", "1"))
	_, ok := cachedRecord(b, "/a")
	assert.True(t, ok)
	require.NoError(t, api.lastErr, "put ran on a cancelled context")

	dropped, err := b.DeleteKey(ctx, "/a", false)
	require.NoError(t, err)
	require.NoError(t, api.lastErr, "delete ran on a cancelled context")
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, b.Len())
}

func TestMutationsHaveDeadline(t *testing.T) {
	api := newFakeAPI(nil)
	b := NewBrowser(api, testCluster, Options{MutationTimeout: time.Minute})

	require.NoError(t, b.PutValue(context.Background(), "/a", "1"))
	deadline, ok := api.lastCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestEmptyKeyRejected(t *testing.T) {
	b, api := newTestBrowser(t, nil)

	assert.ErrorIs(t, b.PutValue(context.Background(), "", "v"), ErrEmptyKey)
	_, err := b.DeleteKey(context.Background(), "", true)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = b.GetValue(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	assert.Equal(t, 0, api.count("put")+api.count("delete")+api.count("get"))
}

func TestDeleteKeyPrefixBoundary(t *testing.T) {
	seed := map[string]string{
		"/config":   "root",
		"/config/a": "a",
		"/config/b": "b",
		"/configX":  "x",
		"/other":    "o",
	}

	tests := []struct {
		name    string
		key     string
		prefix  bool
		dropped int
		left    []string
	}{
		{
			// string prefix: /configX starts with "/config"
			name:    "undelimited prefix",
			key:     "/config",
			prefix:  true,
			dropped: 4,
			left:    []string{"/other"},
		},
		{
			name:    "delimited prefix",
			key:     "/config/",
			prefix:  true,
			dropped: 2,
			left:    []string{"/config", "/configX", "/other"},
		},
		{
			name:    "single key",
			key:     "/config",
			prefix:  false,
			dropped: 1,
			left:    []string{"/config/a", "/config/b", "/configX", "/other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := make(map[string]string, len(seed))
			for k, v := range seed {
				kv[k] = v
			}
			b, api := newTestBrowser(t, kv)
			listAll(t, b)

			dropped, err := b.DeleteKey(context.Background(), tt.key, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.dropped, dropped)
			assert.Equal(t, tt.left, keysOf(b.Records()))
			assert.Equal(t, 1, api.count("delete"))

			// the cache agrees with the server after the delete
			listAll(t, b)
			assert.Equal(t, tt.left, keysOf(b.Records()))
		})
	}
}

func TestDeleteKeyPrunesEmptyNodes(t *testing.T) {
	b, _ := newTestBrowser(t, map[string]string{
		"/config/db/host": "h",
		"/config/db/port": "p",
		"/keep":           "k",
	})
	listAll(t, b)
	require.NotNil(t, b.Tree().Find("/config/db"))

	_, err := b.DeleteKey(context.Background(), "/config/", true)
	require.NoError(t, err)

	assert.Nil(t, b.Tree().Find("/config"))
	assert.Nil(t, b.Tree().Find("/config/db"))
	assert.Equal(t, []string{"keep"}, func() []string {
		var segs []string
		for _, c := range b.Tree().Root.SortedChildren() {
			segs = append(segs, c.Segment)
		}
		return segs
	}())
}

func TestDeleteKeyFailureLeavesCache(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{"/a": "1"})
	listAll(t, b)
	before := b.Tree()

	api.fail = &transport.Error{Kind: transport.ErrRemote, StatusCode: 500, Message: "etcdctl exited 1"}
	_, err := b.DeleteKey(context.Background(), "/a", false)
	require.ErrorIs(t, err, transport.ErrRemote)

	assert.Same(t, before, b.Tree())
	assert.Equal(t, 1, b.Len())
}

func TestGetValueBypassesCache(t *testing.T) {
	b, api := newTestBrowser(t, map[string]string{"/a": "1"})
	listAll(t, b)
	api.set("/a", "2")

	rec, err := b.GetValue(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, "2", rec.Value)

	cached, _ := cachedRecord(b, "/a")
	assert.Equal(t, "1", cached.Value, "reads do not update the cache")

	_, err = b.GetValue(context.Background(), "/missing")
	assert.ErrorIs(t, err, transport.ErrNotFound)
}

func TestRemoteTreeLeavesCache(t *testing.T) {
	b, api := newTestBrowser(t, nil)

	nodes, count, err := b.RemoteTree(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, nodes, 1)
	assert.Equal(t, "/a", nodes[0].Key)
	assert.Equal(t, 1, api.count("tree"))
	assert.Equal(t, 0, b.Len())
}

func TestHealthLatency(t *testing.T) {
	b, _ := newTestBrowser(t, nil)

	before := time.Now()
	health, err := b.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.GreaterOrEqual(t, health.Latency, time.Duration(0))
	assert.False(t, health.CheckedAt.Before(before))
}

func TestBrowserPublishesEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	api := newFakeAPI(nil)
	b := NewBrowser(api, testCluster, Options{Events: broker})

	require.NoError(t, b.PutValue(context.Background(), "/a", "1"))

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventKeyspacePut, ev.Type)
		assert.Equal(t, "/a", ev.Metadata["key"])
		assert.Equal(t, "3", ev.Metadata["cluster_id"])
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestBrowserCustomDelimiter(t *testing.T) {
	api := newFakeAPI(map[string]string{"::svc::db": "1"})
	b := NewBrowser(api, testCluster, Options{Delimiter: "::"})

	_, err := b.ListKeys(context.Background(), types.ScanOptions{Prefix: "::"})
	require.NoError(t, err)
	assert.Equal(t, "::", b.Delimiter())
	assert.NotNil(t, b.Tree().Find("::svc::db"))
}
