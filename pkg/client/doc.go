/*
Package client wires kvdeck's components into one object over a single
connection to a cluster-management API server.

The API server authenticates with a session cookie, guards unsafe methods
with a CSRF token, keeps a registry of Kubernetes cluster connections and
proxies reads and writes to each cluster's etcd. The client keeps the
session between processes, decides which routes the session may enter and
holds the key space of the selected cluster.

# Architecture

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                              │
	│  c, err := client.New(client.Options{Config: cfg})          │
	│  d, err := c.Navigate(ctx, navigation.RouteEtcdBrowser)     │
	│  b, err := c.Browser(ctx, 0)                                │
	│                                                              │
	└──────────────────┬───────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                              │
	│  ┌───────────────┐   ┌────────────────┐   ┌─────────────┐  │
	│  │ navigation    │──▶│ session.Guard  │   │ registry    │  │
	│  │ .Gate         │   │ (who am I?)    │   │ .Client     │  │
	│  └───────▲───────┘   └───────┬────────┘   │ .Store      │  │
	│          │ auth lost         │            └──────┬──────┘  │
	│          │                   │                   │         │
	│  ┌───────┴───────────────────▼───────────────────▼──────┐  │
	│  │ transport.Client                                      │  │
	│  │  - cookie jar mirrored into storage.Store             │  │
	│  │  - CSRF header, rate limit, error kinds               │  │
	│  └───────────────────────────▲──────────────────────────┘  │
	│                              │                              │
	│  ┌───────────────────────────┴──────────────────────────┐  │
	│  │ keyspace.Workspace → keyspace.Browser (flat cache     │  │
	│  │ of key records, tree rebuilt on every change)         │  │
	│  └──────────────────────────────────────────────────────┘  │
	└──────────────────────────────┼─────────────────────────────┘
	                               │ HTTPS, JSON
	                               ▼
	                        Management API Server

# Session

The first Navigate asks the server who the session belongs to; later
navigations reuse that answer. Login and Logout change it directly. When
any request comes back 401 the transport calls the gate, which drops the
session and records a pending redirect to the login route:

	d, err := c.Navigate(ctx, navigation.RouteClusters)
	if err != nil {
		return err
	}
	if !d.Admit {
		// d.RedirectTo == navigation.RouteLogin
		user, next, err := c.Login(ctx, types.Credentials{Username: u, Password: p})
		...
	}

Cookies live in the data directory, sealed with a key generated on first
use (KeyFile). A later process reuses the session until it expires.

# Clusters and Key Space

Registry returns a cached view of the cluster list; Clusters is the plain
API client for one-shot calls such as TestConnection. UseCluster selects a
cluster and remembers it per server, so Browser(ctx, 0) in a later process
opens the same one:

	if _, err := c.UseCluster(ctx, 3); err != nil {
		return err
	}

	b, err := c.Browser(ctx, 0)
	if err != nil {
		return err
	}
	listing, err := b.ListKeys(ctx, types.ScanOptions{Prefix: "/registry/", Limit: 100, KeysOnly: true})
	tree := b.Tree()

Selecting another cluster replaces the browser and with it every cached
key. Logout clears the selection in memory but keeps the remembered id.

# Liveness

Ping dials the server and fetches the CSRF endpoint without a cookie jar,
so it works before login and never triggers the auth-lost path.

# Thread Safety

All methods are safe for concurrent use. Each Client owns its store unless
one is passed in Options, in which case Close leaves it open.
*/
package client
