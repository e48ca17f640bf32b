package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/kvdeck/pkg/events"
	"github.com/cuemby/kvdeck/pkg/session"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu      sync.Mutex
	user    *types.User
	meCalls int
}

func (f *fakeAuth) Me(ctx context.Context) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	if f.user == nil {
		return nil, errors.New("no session")
	}
	return f.user, nil
}

func (f *fakeAuth) Login(ctx context.Context, creds types.Credentials) (*types.User, error) {
	return &types.User{ID: 1, Username: creds.Username}, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error { return nil }
func (f *fakeAuth) ClearSession() error              { return nil }

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls
}

func newGate(user *types.User) (*Gate, *session.Guard, *fakeAuth) {
	api := &fakeAuth{user: user}
	guard := session.NewGuard(api, session.Options{})
	return NewGate(guard, Options{}), guard, api
}

func TestNavigateDecisions(t *testing.T) {
	admin := &types.User{ID: 1, Username: "admin"}

	tests := []struct {
		name       string
		user       *types.User
		route      string
		admit      bool
		redirectTo string
	}{
		{name: "anonymous to dashboard", route: RouteDashboard, redirectTo: RouteLogin},
		{name: "anonymous to clusters", route: RouteClusters, redirectTo: RouteLogin},
		{name: "anonymous to etcd browser", route: RouteEtcdBrowser, redirectTo: RouteLogin},
		{name: "anonymous to login", route: RouteLogin, admit: true},
		{name: "authenticated to dashboard", user: admin, route: RouteDashboard, admit: true},
		{name: "authenticated to etcd browser", user: admin, route: RouteEtcdBrowser, admit: true},
		{name: "authenticated to login", user: admin, route: RouteLogin, redirectTo: RouteDashboard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, _, _ := newGate(tt.user)

			d, err := gate.Navigate(context.Background(), tt.route)
			require.NoError(t, err)
			assert.Equal(t, tt.route, d.Route)
			assert.Equal(t, tt.admit, d.Admit)
			assert.Equal(t, tt.redirectTo, d.RedirectTo)
			if tt.admit {
				assert.Equal(t, tt.route, d.Target())
			} else {
				assert.Equal(t, tt.redirectTo, d.Target())
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestNavigateResolvesOnce(t *testing.T) {
	gate, _, api := newGate(&types.User{ID: 1, Username: "admin"})
	ctx := context.Background()

	for _, r := range []string{RouteDashboard, RouteClusters, RouteEtcdBrowser, RouteLogin, RouteDashboard} {
		_, err := gate.Navigate(ctx, r)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, api.calls())
}

func TestNavigateConcurrentFirstNavigations(t *testing.T) {
	gate, guard, api := newGate(&types.User{ID: 1, Username: "admin"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := gate.Navigate(context.Background(), RouteClusters)
			assert.NoError(t, err)
			assert.True(t, d.Admit)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, api.calls())
	assert.True(t, guard.Initialized())
}

func TestNavigateUnknownRoute(t *testing.T) {
	gate, _, api := newGate(nil)

	_, err := gate.Navigate(context.Background(), "settings")
	assert.ErrorIs(t, err, ErrUnknownRoute)
	assert.Zero(t, api.calls(), "unknown routes do not resolve the session")
}

func TestNavigateCancelledBeforeResolve(t *testing.T) {
	gate, _, _ := newGate(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gate.Navigate(ctx, RouteDashboard)
	// Either the lookup finished first or the caller gave up
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestRegisterRoute(t *testing.T) {
	gate, _, _ := newGate(&types.User{ID: 1, Username: "admin"})

	require.NoError(t, gate.Register(Route{Name: "settings", Path: "/settings", RequiresAuth: true}))
	assert.Error(t, gate.Register(Route{}))

	d, err := gate.Navigate(context.Background(), "settings")
	require.NoError(t, err)
	assert.True(t, d.Admit)

	names := []string{}
	for _, r := range gate.Routes() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"clusters", "dashboard", "etcd-browser", "login", "settings"}, names)
}

func TestHandleAuthLost(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	api := &fakeAuth{user: &types.User{ID: 1, Username: "admin"}}
	guard := session.NewGuard(api, session.Options{})
	gate := NewGate(guard, Options{Events: broker})
	ctx := context.Background()

	d, err := gate.Navigate(ctx, RouteClusters)
	require.NoError(t, err)
	require.True(t, d.Admit)

	gate.HandleAuthLost()

	assert.False(t, guard.IsAuthenticated())
	target, ok := gate.PendingRedirect()
	assert.True(t, ok)
	assert.Equal(t, RouteLogin, target)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventSessionLost, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session.lost")
	}

	// The next navigation to a protected route goes to login and consumes
	// the pending redirect
	d, err = gate.Navigate(ctx, RouteClusters)
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, RouteLogin, d.RedirectTo)
	_, ok = gate.PendingRedirect()
	assert.False(t, ok)

	// A second 401 while anonymous records the redirect again but no
	// session is lost
	gate.HandleAuthLost()
	target, ok = gate.PendingRedirect()
	assert.True(t, ok)
	assert.Equal(t, RouteLogin, target)
	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case ev := <-sub:
			assert.NotEqual(t, events.EventSessionLost, ev.Type)
		case <-deadline:
			return
		}
	}
}

// rejectingAuth answers the session lookup with a 401 through the hook,
// as the transport does
type rejectingAuth struct {
	fakeAuth
	onUnauthorized func()
}

func (r *rejectingAuth) Me(ctx context.Context) (*types.User, error) {
	r.onUnauthorized()
	return nil, errors.New("401 unauthorized")
}

func TestUnauthorizedLookupRecordsRedirect(t *testing.T) {
	api := &rejectingAuth{}
	guard := session.NewGuard(api, session.Options{})
	gate := NewGate(guard, Options{})
	api.onUnauthorized = gate.HandleAuthLost

	snap, err := guard.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Anonymous, snap.State)

	target, ok := gate.PendingRedirect()
	assert.True(t, ok)
	assert.Equal(t, RouteLogin, target)

	d, err := gate.Navigate(context.Background(), RouteEtcdBrowser)
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, d.RedirectTo)
	_, ok = gate.PendingRedirect()
	assert.False(t, ok)
}
