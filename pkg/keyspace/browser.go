package keyspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/metrics"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrEmptyKey is returned for operations on the empty key
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrClusterInactive is returned when selecting a disabled cluster
	ErrClusterInactive = errors.New("cluster is inactive")

	// ErrNoCluster is returned when no cluster has been selected
	ErrNoCluster = errors.New("no cluster selected")
)

const (
	// MaxListLimit is the largest page the server accepts
	MaxListLimit = 1000

	// DefaultMutationTimeout bounds puts and deletes
	DefaultMutationTimeout = 30 * time.Second
)

// Options configure a Browser
type Options struct {
	Delimiter       string
	MutationTimeout time.Duration
	Events          events.Publisher
	Logger          *zerolog.Logger
}

// Browser is the key-space of one cluster: a flat cache of key records
// and the tree projected from it. The tree is rebuilt from scratch on
// every cache change.
type Browser struct {
	api     API
	cluster types.Cluster
	delim   string
	timeout time.Duration
	events  events.Publisher
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string]types.KeyRecord
	tree  *Tree
}

// NewBrowser creates an empty browser bound to cluster
func NewBrowser(api API, cluster types.Cluster, opts Options) *Browser {
	b := &Browser{
		api:     api,
		cluster: cluster,
		delim:   opts.Delimiter,
		timeout: opts.MutationTimeout,
		events:  opts.Events,
		cache:   make(map[string]types.KeyRecord),
	}
	if b.delim == "" {
		b.delim = DefaultDelimiter
	}
	if b.timeout <= 0 {
		b.timeout = DefaultMutationTimeout
	}
	if b.events == nil {
		b.events = events.Discard
	}
	logger := log.WithComponent("keyspace")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	b.logger = log.WithClusterID(logger, cluster.ID)
	b.tree = BuildTree(nil, b.delim)
	return b
}

// Cluster returns the cluster the browser is bound to
func (b *Browser) Cluster() types.Cluster {
	return b.cluster
}

// Delimiter returns the segment separator
func (b *Browser) Delimiter() string {
	return b.delim
}

// Tree returns the current projection. The returned tree is never
// modified by the browser and must not be modified by the caller.
func (b *Browser) Tree() *Tree {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree
}

// Records returns the cached records in key order
func (b *Browser) Records() []types.KeyRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedRecords(b.cache)
}

// Len returns the number of cached records
func (b *Browser) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cache)
}

// rebuild must be called with b.mu held for writing
func (b *Browser) rebuild() {
	timer := metrics.NewTimer()
	b.tree = BuildTree(sortedRecords(b.cache), b.delim)
	timer.ObserveDuration(metrics.TreeRebuildDuration)
	metrics.CacheKeys.Set(float64(len(b.cache)))
}

func sortedRecords(cache map[string]types.KeyRecord) []types.KeyRecord {
	records := make([]types.KeyRecord, 0, len(cache))
	for _, r := range cache {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}

func (b *Browser) publish(typ events.EventType, msg string, meta map[string]string) {
	if meta == nil {
		meta = make(map[string]string)
	}
	meta["cluster_id"] = strconv.FormatInt(b.cluster.ID, 10)
	b.events.Publish(events.New(typ, msg, meta))
}

// normalizeScan fills defaults and validates the limit
func normalizeScan(opts types.ScanOptions) (types.ScanOptions, error) {
	if opts.Prefix == "" && opts.RangeEnd == "" {
		opts.Prefix = DefaultDelimiter
	}
	if opts.Limit == 0 {
		opts.Limit = types.DefaultScanOptions().Limit
	}
	if opts.Limit < 1 || opts.Limit > MaxListLimit {
		return opts, fmt.Errorf("%w: limit must be between 1 and %d, got %d", transport.ErrValidation, MaxListLimit, opts.Limit)
	}
	if opts.RangeEnd != "" && opts.RangeEnd != "\x00" && opts.RangeEnd <= opts.Prefix {
		return opts, fmt.Errorf("%w: range end %q must sort after %q", transport.ErrValidation, opts.RangeEnd, opts.Prefix)
	}
	return opts, nil
}

// scope is the key set a listing is authoritative for
type scope struct {
	opts types.ScanOptions

	// upper is the inclusive upper bound of a truncated listing
	upper    string
	hasUpper bool
}

func newScope(opts types.ScanOptions, listing types.KeyListing) scope {
	s := scope{opts: opts}
	if listing.Truncated && len(listing.Records) > 0 {
		last := listing.Records[0].Key
		for _, r := range listing.Records[1:] {
			if r.Key > last {
				last = r.Key
			}
		}
		s.upper = last
		s.hasUpper = true
	}
	return s
}

func (s scope) contains(key string) bool {
	if s.hasUpper && key > s.upper {
		return false
	}
	if s.opts.RangeEnd == "" {
		return strings.HasPrefix(key, s.opts.Prefix)
	}
	if key < s.opts.Prefix {
		return false
	}
	return s.opts.RangeEnd == "\x00" || key < s.opts.RangeEnd
}

// ListKeys fetches the keys selected by opts and makes the cache agree
// with the server inside that selection: cached keys the server no
// longer reports are dropped. A truncated listing only vouches for keys
// up to the last one returned. On failure, or when ctx is done before the
// reply arrives, the cache is left untouched.
func (b *Browser) ListKeys(ctx context.Context, opts types.ScanOptions) (types.KeyListing, error) {
	opts, err := normalizeScan(opts)
	if err != nil {
		return types.KeyListing{}, err
	}

	listing, err := b.api.ListKeys(ctx, b.cluster.ID, opts)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	metrics.KeyspaceOperationsTotal.WithLabelValues("list", metrics.Result(err)).Inc()
	if err != nil {
		b.logger.Debug().Err(err).Str("prefix", opts.Prefix).Msg("key listing failed")
		return types.KeyListing{}, err
	}

	sc := newScope(opts, listing)

	b.mu.Lock()
	for k := range b.cache {
		if sc.contains(k) {
			delete(b.cache, k)
		}
	}
	for _, r := range listing.Records {
		b.cache[r.Key] = r
	}
	b.rebuild()
	b.mu.Unlock()

	b.logger.Debug().
		Str("prefix", opts.Prefix).
		Int("count", len(listing.Records)).
		Bool("truncated", listing.Truncated).
		Msg("listed keys")
	b.publish(events.EventKeyspaceListed, "keys listed", map[string]string{
		"prefix": opts.Prefix,
		"count":  strconv.Itoa(len(listing.Records)),
	})
	return listing, nil
}

// RemoteTree returns the outline computed by the server. The cache is
// not touched.
func (b *Browser) RemoteTree(ctx context.Context, prefix string, limit int) ([]types.RemoteTreeNode, int, error) {
	if prefix == "" {
		prefix = b.delim
	}
	nodes, count, err := b.api.RemoteTree(ctx, b.cluster.ID, prefix, limit)
	metrics.KeyspaceOperationsTotal.WithLabelValues("tree", metrics.Result(err)).Inc()
	return nodes, count, err
}

// GetValue reads a key from the server. The cache is neither consulted
// nor updated.
func (b *Browser) GetValue(ctx context.Context, key string) (types.KeyRecord, error) {
	if key == "" {
		return types.KeyRecord{}, ErrEmptyKey
	}
	rec, err := b.api.GetValue(ctx, b.cluster.ID, key)
	metrics.KeyspaceOperationsTotal.WithLabelValues("get", metrics.Result(err)).Inc()
	return rec, err
}

// mutationContext detaches ctx from its cancellation so a mutation the
// server applied is also applied to the cache
func (b *Browser) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
}

// PutValue writes a key. On success the record is upserted into the
// cache; on failure nothing changes.
func (b *Browser) PutValue(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	mctx, cancel := b.mutationContext(ctx)
	defer cancel()

	err := b.api.PutValue(mctx, b.cluster.ID, key, value)
	metrics.KeyspaceOperationsTotal.WithLabelValues("put", metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cache[key] = types.KeyRecord{Key: key, Value: value, HasValue: true}
	b.rebuild()
	b.mu.Unlock()

	b.logger.Info().Str("key", key).Msg("key written")
	b.publish(events.EventKeyspacePut, "key written", map[string]string{"key": key})
	return nil
}

// DeleteKey deletes key, or with prefix every key whose string form
// starts with key, in one remote call. On success the same keys leave
// the cache and the number of cached records dropped is returned.
func (b *Browser) DeleteKey(ctx context.Context, key string, prefix bool) (int, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	mctx, cancel := b.mutationContext(ctx)
	defer cancel()

	err := b.api.DeleteKey(mctx, b.cluster.ID, key, prefix)
	metrics.KeyspaceOperationsTotal.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	dropped := 0
	for k := range b.cache {
		if k == key || (prefix && strings.HasPrefix(k, key)) {
			delete(b.cache, k)
			dropped++
		}
	}
	b.rebuild()
	b.mu.Unlock()

	b.logger.Info().Str("key", key).Bool("prefix", prefix).Int("dropped", dropped).Msg("keys deleted")
	b.publish(events.EventKeyspaceDeleted, "keys deleted", map[string]string{
		"key":    key,
		"prefix": strconv.FormatBool(prefix),
	})
	return dropped, nil
}

// Health probes the cluster's etcd. Latency is the observed round trip.
func (b *Browser) Health(ctx context.Context) (*types.EtcdHealth, error) {
	timer := metrics.NewTimer()
	health, err := b.api.Health(ctx, b.cluster.ID)
	metrics.KeyspaceOperationsTotal.WithLabelValues("health", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}

	timer.ObserveDuration(metrics.EtcdHealthLatency)
	health.Latency = timer.Duration()
	health.CheckedAt = time.Now()
	return health, nil
}
