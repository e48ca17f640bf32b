package session

import (
	"context"
	"net/http"

	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/transport"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/rs/zerolog"
)

// AuthAPI is the remote side of the session
type AuthAPI interface {
	// Login submits credentials and returns the authenticated user
	Login(ctx context.Context, creds types.Credentials) (*types.User, error)

	// Logout ends the server-side session
	Logout(ctx context.Context) error

	// Me returns the user owning the current session
	Me(ctx context.Context) (*types.User, error)

	// ClearSession drops every locally held credential
	ClearSession() error
}

// HTTPAuth implements AuthAPI over the management API's /auth endpoints
type HTTPAuth struct {
	client *transport.Client
	logger zerolog.Logger
}

// NewHTTPAuth creates an AuthAPI backed by client
func NewHTTPAuth(client *transport.Client, logger *zerolog.Logger) *HTTPAuth {
	a := &HTTPAuth{client: client}
	if logger != nil {
		a.logger = *logger
	} else {
		a.logger = log.WithComponent("session")
	}
	return a
}

// CSRF asks the server to issue the anti-forgery cookie
func (a *HTTPAuth) CSRF(ctx context.Context) error {
	return a.client.Do(ctx, transport.Request{
		Method:    http.MethodGet,
		Path:      "/auth/csrf/",
		Anonymous: true,
	}, nil)
}

// Login always refreshes the anti-forgery token first. A failed refresh
// is logged and the credentials are submitted anyway.
func (a *HTTPAuth) Login(ctx context.Context, creds types.Credentials) (*types.User, error) {
	if err := a.CSRF(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to fetch CSRF token, submitting login without it")
	}

	var user types.User
	err := a.client.Do(ctx, transport.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login/",
		Body:      creds,
		Anonymous: true,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *HTTPAuth) Logout(ctx context.Context) error {
	return a.client.Post(ctx, "/auth/logout/", nil, nil)
}

func (a *HTTPAuth) Me(ctx context.Context) (*types.User, error) {
	var user types.User
	if err := a.client.Get(ctx, "/auth/me/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *HTTPAuth) ClearSession() error {
	return a.client.Jar().Clear()
}
