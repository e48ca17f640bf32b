package navigation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/session"
	"github.com/rs/zerolog"
)

// Route names
const (
	RouteLogin       = "login"
	RouteDashboard   = "dashboard"
	RouteClusters    = "clusters"
	RouteEtcdBrowser = "etcd-browser"
)

// ErrUnknownRoute is returned when navigating to an unregistered route
var ErrUnknownRoute = errors.New("unknown route")

// Route is a named destination
type Route struct {
	Name         string
	Path         string
	RequiresAuth bool
}

// DefaultRoutes returns the built-in route table
func DefaultRoutes() []Route {
	return []Route{
		{Name: RouteLogin, Path: "/login", RequiresAuth: false},
		{Name: RouteDashboard, Path: "/", RequiresAuth: true},
		{Name: RouteClusters, Path: "/clusters", RequiresAuth: true},
		{Name: RouteEtcdBrowser, Path: "/clusters/:id/etcd", RequiresAuth: true},
	}
}

// Decision is the outcome of a navigation
type Decision struct {
	// Route is the requested route
	Route string

	// Admit is true when the navigation proceeds to Route
	Admit bool

	// RedirectTo names the route to go to instead when Admit is false
	RedirectTo string

	Reason string
}

// Target returns the route the navigation ends on
func (d Decision) Target() string {
	if d.Admit {
		return d.Route
	}
	return d.RedirectTo
}

// SessionGuard is the part of session.Guard the gate consults
type SessionGuard interface {
	Resolve(ctx context.Context) (session.Snapshot, error)
	Invalidate() bool
}

// Options configure a Gate
type Options struct {
	Routes []Route
	Events events.Publisher
	Logger *zerolog.Logger
}

// Gate admits or redirects every navigation based on the session
type Gate struct {
	guard  SessionGuard
	events events.Publisher
	logger zerolog.Logger

	mu      sync.RWMutex
	routes  map[string]Route
	pending string
}

// NewGate creates a gate over guard. Routes default to DefaultRoutes.
func NewGate(guard SessionGuard, opts Options) *Gate {
	g := &Gate{
		guard:  guard,
		events: opts.Events,
		routes: make(map[string]Route),
	}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	} else {
		g.logger = log.WithComponent("navigation")
	}
	if g.events == nil {
		g.events = events.Discard
	}

	routes := opts.Routes
	if routes == nil {
		routes = DefaultRoutes()
	}
	for _, r := range routes {
		g.routes[r.Name] = r
	}
	return g
}

// Register adds or replaces a route
func (g *Gate) Register(r Route) error {
	if r.Name == "" {
		return fmt.Errorf("route name cannot be empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes[r.Name] = r
	return nil
}

// Route looks up a route by name
func (g *Gate) Route(name string) (Route, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.routes[name]
	return r, ok
}

// Routes returns every registered route sorted by name
func (g *Gate) Routes() []Route {
	g.mu.RLock()
	defer g.mu.RUnlock()

	routes := make([]Route, 0, len(g.routes))
	for _, r := range g.routes {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes
}

// Navigate decides whether the session may enter the named route. The
// session is resolved first; later navigations reuse that verdict.
func (g *Gate) Navigate(ctx context.Context, name string) (Decision, error) {
	route, ok := g.Route(name)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}

	snap, err := g.guard.Resolve(ctx)
	if err != nil {
		return Decision{}, err
	}

	logger := log.WithRoute(g.logger, name)

	var d Decision
	switch {
	case route.RequiresAuth && !snap.IsAuthenticated():
		d = Decision{Route: name, RedirectTo: RouteLogin, Reason: "authentication required"}
	case route.Name == RouteLogin && snap.IsAuthenticated():
		d = Decision{Route: name, RedirectTo: RouteDashboard, Reason: "already authenticated"}
	default:
		d = Decision{Route: name, Admit: true}
	}

	if d.Target() == RouteLogin {
		g.mu.Lock()
		g.pending = ""
		g.mu.Unlock()
	}

	if !d.Admit {
		logger.Debug().Str("redirect_to", d.RedirectTo).Str("reason", d.Reason).Msg("navigation redirected")
		g.events.Publish(events.New(events.EventNavigationRedirected, d.Reason, map[string]string{
			"route":       name,
			"redirect_to": d.RedirectTo,
		}))
	}
	return d, nil
}

// HandleAuthLost reacts to the server rejecting the session: a redirect
// to the login route is recorded and an authenticated session is
// invalidated. It is meant to be the transport's auth-lost hook, so it
// also runs for the 401 of a session lookup that finds no session.
func (g *Gate) HandleAuthLost() {
	g.mu.Lock()
	g.pending = RouteLogin
	g.mu.Unlock()

	if !g.guard.Invalidate() {
		g.logger.Debug().Msg("no session on server, login required")
		return
	}

	g.logger.Warn().Msg("session rejected by server, login required")
	g.events.Publish(events.New(events.EventSessionLost, "session rejected by server", map[string]string{
		"redirect_to": RouteLogin,
	}))
}

// PendingRedirect returns the route recorded by HandleAuthLost that has
// not been navigated to yet
func (g *Gate) PendingRedirect() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pending, g.pending != ""
}
