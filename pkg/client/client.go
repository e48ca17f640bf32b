package client

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/kvdeck/pkg/config"
	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/health"
	"github.com/cuemby/kvdeck/pkg/keyspace"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/navigation"
	"github.com/cuemby/kvdeck/pkg/registry"
	"github.com/cuemby/kvdeck/pkg/security"
	"github.com/cuemby/kvdeck/pkg/session"
	"github.com/cuemby/kvdeck/pkg/storage"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// KeyFile seals the stored session cookies. It lives in the data dir.
	KeyFile = "cookie.key"

	// CAExpiryWarning is how close to expiry a configured CA is reported
	CAExpiryWarning = 30 * 24 * time.Hour
)

// Options configure a Client
type Options struct {
	Config *config.Config

	// Store holds cookies and the active cluster. When nil a BoltStore
	// is opened in Config.DataDir and closed by Close.
	Store storage.Store

	Events events.Publisher
	Logger *zerolog.Logger
}

// Client wires the session guard, the navigation gate, the cluster
// registry and the key-space workspace over one API connection
type Client struct {
	cfg       *config.Config
	store     storage.Store
	ownsStore bool
	tlsOpts   security.TLSOptions
	logger    zerolog.Logger

	transport *transport.Client
	guard     *session.Guard
	gate      *navigation.Gate
	clusters  *registry.Client
	registry  *registry.Store
	workspace *keyspace.Workspace
}

// New creates a client from configuration
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := log.WithComponent("client")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	publisher := opts.Events
	if publisher == nil {
		publisher = events.Discard
	}

	c := &Client{
		cfg:    cfg,
		store:  opts.Store,
		logger: logger,
		tlsOpts: security.TLSOptions{
			CACert:             cfg.TLS.CACert,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	}

	tlsConfig, err := security.NewTLSConfig(c.tlsOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS settings: %w", err)
	}
	if cfg.TLS.CACert != "" {
		c.warnExpiringCA(cfg.TLS.CACert)
	}
	if cfg.TLS.InsecureSkipVerify {
		logger.Warn().Msg("TLS certificate verification is disabled")
	}

	if c.store == nil {
		sealer, err := security.NewSecretsManagerFromKeyFile(filepath.Join(cfg.DataDir, KeyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load cookie key: %w", err)
		}
		bolt, err := storage.NewBoltStore(cfg.DataDir, sealer)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		c.store = bolt
		c.ownsStore = true
	}

	c.transport, err = transport.New(transport.Config{
		BaseURL:   cfg.Server,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		TLS:       tlsConfig,
		Cookies:   c.store,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	c.guard = session.NewGuard(session.NewHTTPAuth(c.transport, nil), session.Options{Events: publisher})
	c.gate = navigation.NewGate(c.guard, navigation.Options{Events: publisher})
	c.transport.SetAuthLostHandler(c.gate.HandleAuthLost)

	c.clusters = registry.NewClient(c.transport, nil)
	c.registry = registry.NewStore(c.clusters)
	c.workspace = keyspace.NewWorkspace(keyspace.NewHTTPAPI(c.transport), c.clusters, keyspace.WorkspaceOptions{
		Options: keyspace.Options{
			Delimiter:       cfg.Keyspace.Delimiter,
			MutationTimeout: cfg.Timeout,
			Events:          publisher,
		},
		ResolveStatus: cfg.Keyspace.ResolveStatus,
	})

	return c, nil
}

func (c *Client) warnExpiringCA(path string) {
	certs, err := security.LoadCACertsFromFile(path)
	if err != nil {
		return
	}
	for _, cert := range certs {
		remaining := security.CertTimeRemaining(cert)
		switch {
		case remaining <= 0:
			c.logger.Warn().Str("subject", cert.Subject.CommonName).Time("not_after", cert.NotAfter).Msg("CA certificate has expired")
		case remaining < CAExpiryWarning:
			c.logger.Warn().Str("subject", cert.Subject.CommonName).Dur("remaining", remaining).Msg("CA certificate expires soon")
		}
	}
}

// Close releases the session store if the client opened it
func (c *Client) Close() error {
	if c.ownsStore && c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Server returns the API base URL
func (c *Client) Server() string {
	return c.transport.BaseURL()
}

// Config returns the effective configuration
func (c *Client) Config() *config.Config {
	return c.cfg
}

func (c *Client) Transport() *transport.Client   { return c.transport }
func (c *Client) Guard() *session.Guard          { return c.guard }
func (c *Client) Gate() *navigation.Gate         { return c.gate }
func (c *Client) Clusters() *registry.Client     { return c.clusters }
func (c *Client) Registry() *registry.Store      { return c.registry }
func (c *Client) Workspace() *keyspace.Workspace { return c.workspace }

// Navigate runs the gate for route
func (c *Client) Navigate(ctx context.Context, route string) (navigation.Decision, error) {
	return c.gate.Navigate(ctx, route)
}

// Login authenticates and returns the route to continue to
func (c *Client) Login(ctx context.Context, creds types.Credentials) (*types.User, navigation.Decision, error) {
	user, err := c.guard.Login(ctx, creds)
	if err != nil {
		return nil, navigation.Decision{}, err
	}
	d, err := c.gate.Navigate(ctx, navigation.RouteDashboard)
	return user, d, err
}

// Logout ends the session and drops the selected cluster from memory.
// The remembered active cluster is kept for the next login.
func (c *Client) Logout(ctx context.Context) {
	c.guard.Logout(ctx)
	c.workspace.Clear()
}

// UseCluster selects a cluster and remembers it for later invocations
func (c *Client) UseCluster(ctx context.Context, clusterID int64) (*keyspace.Browser, error) {
	browser, err := c.workspace.Select(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetActiveCluster(c.Server(), clusterID); err != nil {
		return nil, fmt.Errorf("failed to remember active cluster: %w", err)
	}
	return browser, nil
}

// ActiveCluster returns the remembered cluster id. It returns
// keyspace.ErrNoCluster when none was chosen.
func (c *Client) ActiveCluster() (int64, error) {
	id, err := c.store.GetActiveCluster(c.Server())
	if errors.Is(err, storage.ErrNotFound) {
		return 0, keyspace.ErrNoCluster
	}
	return id, err
}

// Browser returns the browser of clusterID, or of the remembered active
// cluster when clusterID is 0. The current selection is reused when it
// already matches.
func (c *Client) Browser(ctx context.Context, clusterID int64) (*keyspace.Browser, error) {
	if clusterID == 0 {
		id, err := c.ActiveCluster()
		if err != nil {
			return nil, err
		}
		clusterID = id
	}

	if b, err := c.workspace.Browser(); err == nil && b.Cluster().ID == clusterID {
		return b, nil
	}
	return c.workspace.Select(ctx, clusterID)
}

// Ping checks that the API server accepts connections and answers the
// unauthenticated CSRF endpoint. It never touches the session.
func (c *Client) Ping(ctx context.Context) ([]health.Result, error) {
	tcp, err := health.NewServerTCPChecker(c.Server())
	if err != nil {
		return nil, err
	}
	tlsConfig, err := security.NewTLSConfig(c.tlsOpts)
	if err != nil {
		return nil, err
	}

	checkers := []health.Checker{
		tcp.WithTimeout(c.cfg.Timeout),
		health.NewAPIChecker(c.Server(), tlsConfig).WithTimeout(c.cfg.Timeout),
	}
	results := make([]health.Result, 0, len(checkers))
	for _, ch := range checkers {
		r := ch.Check(ctx)
		results = append(results, r)
		if !r.Healthy {
			break
		}
	}
	return results, nil
}
