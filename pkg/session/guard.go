package session

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/metrics"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// State is the position of a Guard in its lifecycle
type State int

const (
	// Unresolved: no identity lookup has been attempted yet
	Unresolved State = iota
	// Resolving: the identity lookup is in flight
	Resolving
	// Authenticated: a user is known
	Authenticated
	// Anonymous: no user
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// DefaultResolveTimeout bounds the identity lookup
const DefaultResolveTimeout = 30 * time.Second

// Snapshot is a copy of the guard's state
type Snapshot struct {
	User        *types.User
	Initialized bool
	State       State
}

// IsAuthenticated reports whether the snapshot carries a user
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

// Options configure a Guard
type Options struct {
	Logger         *zerolog.Logger
	Events         events.Publisher
	ResolveTimeout time.Duration
}

// Guard owns the session of the current process. The first Resolve asks
// the server who we are; every later call answers from memory.
type Guard struct {
	api     AuthAPI
	events  events.Publisher
	logger  zerolog.Logger
	timeout time.Duration

	flight singleflight.Group

	mu          sync.Mutex
	state       State
	user        *types.User
	initialized bool
	// epoch changes on every login, logout and invalidation so an identity
	// lookup that raced one of them can tell its answer is stale
	epoch uint64
}

// NewGuard creates an unresolved guard
func NewGuard(api AuthAPI, opts Options) *Guard {
	g := &Guard{
		api:     api,
		events:  opts.Events,
		timeout: opts.ResolveTimeout,
	}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	} else {
		g.logger = log.WithComponent("session")
	}
	if g.events == nil {
		g.events = events.Discard
	}
	if g.timeout <= 0 {
		g.timeout = DefaultResolveTimeout
	}
	return g
}

// Snapshot returns a copy of the current state
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Guard) snapshotLocked() Snapshot {
	return Snapshot{
		User:        copyUser(g.user),
		Initialized: g.initialized,
		State:       g.state,
	}
}

// User returns a copy of the current user, or nil
func (g *Guard) User() *types.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyUser(g.user)
}

// IsAuthenticated reports whether a user is known
func (g *Guard) IsAuthenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.user != nil
}

// Initialized reports whether a resolution has completed
func (g *Guard) Initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialized
}

// State returns the current lifecycle state
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Resolve determines the session once per guard. Concurrent callers share
// a single lookup. A failed lookup resolves to Anonymous; the only error
// returned is ctx's when the caller stops waiting, in which case the
// lookup keeps running for the others.
func (g *Guard) Resolve(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	if g.initialized {
		s := g.snapshotLocked()
		g.mu.Unlock()
		return s, nil
	}
	g.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := g.flight.DoChan("resolve", func() (any, error) {
		g.resolve(detached)
		return nil, nil
	})

	select {
	case <-ch:
		return g.Snapshot(), nil
	case <-ctx.Done():
		return g.Snapshot(), ctx.Err()
	}
}

func (g *Guard) resolve(parent context.Context) {
	g.mu.Lock()
	if g.initialized {
		g.mu.Unlock()
		return
	}
	g.state = Resolving
	epoch := g.epoch
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	user, err := g.api.Me(ctx)

	g.mu.Lock()
	g.initialized = true
	if g.epoch != epoch {
		// A login, logout or invalidation decided the session meanwhile
		g.mu.Unlock()
		metrics.SessionResolutionsTotal.WithLabelValues("superseded").Inc()
		g.logger.Debug().Msg("discarding superseded identity lookup")
		return
	}

	var ev *events.Event
	if err != nil {
		g.state = Anonymous
		g.user = nil
		ev = events.New(events.EventSessionAnonymous, "no active session", nil)
	} else {
		g.state = Authenticated
		g.user = copyUser(user)
		ev = events.New(events.EventSessionAuthenticated, "session resolved", map[string]string{"username": user.Username})
	}
	g.mu.Unlock()

	if err != nil {
		metrics.SessionResolutionsTotal.WithLabelValues("anonymous").Inc()
		g.logger.Debug().Err(err).Msg("session resolved anonymous")
	} else {
		metrics.SessionResolutionsTotal.WithLabelValues("authenticated").Inc()
		g.logger.Debug().Str("username", user.Username).Msg("session resolved")
	}
	g.events.Publish(ev)
}

// Login authenticates with the server. On failure the state is left
// unchanged and the error (transport.ErrInvalidCredentials for rejected
// credentials) is returned.
func (g *Guard) Login(ctx context.Context, creds types.Credentials) (*types.User, error) {
	user, err := g.api.Login(ctx, creds)
	if err != nil {
		g.logger.Debug().Err(err).Str("username", creds.Username).Msg("login failed")
		return nil, err
	}

	g.mu.Lock()
	g.epoch++
	g.state = Authenticated
	g.user = copyUser(user)
	g.initialized = true
	g.mu.Unlock()

	g.logger.Info().Str("username", user.Username).Msg("logged in")
	g.events.Publish(events.New(events.EventSessionAuthenticated, "logged in", map[string]string{"username": user.Username}))
	return copyUser(user), nil
}

// Logout ends the session. The local state and cookies are cleared even
// when the server call fails; that failure is only logged.
func (g *Guard) Logout(ctx context.Context) {
	if err := g.api.Logout(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("remote logout failed, clearing local session anyway")
	}
	if err := g.api.ClearSession(); err != nil {
		g.logger.Warn().Err(err).Msg("failed to clear local session")
	}

	g.mu.Lock()
	g.epoch++
	g.state = Anonymous
	g.user = nil
	g.initialized = true
	g.mu.Unlock()

	g.events.Publish(events.New(events.EventSessionLoggedOut, "logged out", nil))
}

// Invalidate drops an authenticated session after the server rejected it.
// It reports whether anything changed; guards that are not authenticated
// are left alone.
func (g *Guard) Invalidate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Authenticated {
		return false
	}
	g.epoch++
	g.state = Anonymous
	g.user = nil
	return true
}

func copyUser(u *types.User) *types.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
