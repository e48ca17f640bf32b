package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// CSRFCookie is the cookie the server issues the anti-forgery token in
	CSRFCookie = "csrftoken"

	// CSRFHeader carries the token back on every request
	CSRFHeader = "X-CSRFToken"

	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second

	maxBodySize = 10 << 20
)

// Config configures a Client
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api
	BaseURL string

	// Timeout bounds every request. Zero means DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// TLS overrides the default TLS configuration when non-nil
	TLS *tls.Config

	// Cookies persists the session between processes when non-nil
	Cookies CookieStore

	// UserAgent defaults to "kvdeck"
	UserAgent string

	Logger *zerolog.Logger
}

// Request describes one API call
type Request struct {
	Method string

	// Path is relative to the base URL and starts with a slash
	Path  string
	Query url.Values

	// Body is encoded as JSON when non-nil
	Body any

	// Anonymous marks requests that may legitimately be rejected with a
	// 401 (login). They never fire the auth-lost hook.
	Anonymous bool
}

// Client talks JSON to the management API. It carries the session cookie
// and the anti-forgery token on every request and reports rejected
// sessions to a single registered hook.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	jar     *PersistentJar
	limiter *rate.Limiter
	agent   string
	logger  zerolog.Logger

	mu         sync.RWMutex
	onAuthLost func()
}

// New creates a transport client
func New(cfg Config) (*Client, error) {
	base, err := ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	var logger zerolog.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	} else {
		logger = log.WithComponent("transport")
	}

	jar, err := NewPersistentJar(base, cfg.Cookies, &logger)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLS != nil {
		transport.TLSClientConfig = cfg.TLS
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	agent := cfg.UserAgent
	if agent == "" {
		agent = "kvdeck"
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Jar:       jar,
			Timeout:   timeout,
			Transport: transport,
		},
		jar:     jar,
		limiter: limiter,
		agent:   agent,
		logger:  logger,
	}, nil
}

// ParseBaseURL validates an API root URL
func ParseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the normalized API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Jar returns the cookie jar shared by every request
func (c *Client) Jar() *PersistentJar {
	return c.jar
}

// CSRFToken returns the current anti-forgery token, if the server issued one
func (c *Client) CSRFToken() string {
	token, _ := c.jar.Value(CSRFCookie)
	return token
}

// SetAuthLostHandler registers the hook invoked on every 401 reply to a
// non-anonymous request. It replaces any previous hook.
func (c *Client) SetAuthLostHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthLost = fn
}

func (c *Client) authLost() {
	c.mu.RLock()
	fn := c.onAuthLost
	c.mu.RUnlock()

	metrics.AuthLostTotal.Inc()
	if fn != nil {
		fn()
	}
}

// Get issues a GET and decodes the reply into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Patch issues a PATCH with a JSON body
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete issues a DELETE, with a JSON body when body is non-nil
func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Body: body}, out)
}

// Do performs req and decodes a successful JSON reply into out (when non-nil).
// Failures are returned as *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	fail := func(kind error, status int, msg string, cause error) error {
		return &Error{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: status,
			Message:    msg,
			Kind:       kind,
			Err:        cause,
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(ErrTransport, 0, "", err)
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return fail(ErrTransport, 0, "", err)
	}

	endpoint := endpointLabel(req.Path)
	timer := metrics.NewTimer()
	resp, err := c.http.Do(httpReq)
	timer.ObserveDurationVec(metrics.HTTPRequestDuration, req.Method, endpoint)
	if err != nil {
		metrics.HTTPRequestsTotal.WithLabelValues(req.Method, endpoint, "error").Inc()
		c.logger.Debug().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("request failed")
		return fail(ErrTransport, 0, "", err)
	}
	defer resp.Body.Close()

	metrics.HTTPRequestsTotal.WithLabelValues(req.Method, endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fail(ErrTransport, resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("took", timer.Duration()).
		Msg("request completed")

	if resp.StatusCode >= http.StatusBadRequest {
		kind := kindForStatus(resp.StatusCode, req.Anonymous)
		if errors.Is(kind, ErrAuthenticationLost) {
			c.authLost()
		}
		return fail(kind, resp.StatusCode, serverMessage(body), nil)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(body, out); err != nil {
		return fail(ErrTransport, resp.StatusCode, "", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + req.Path
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := sonic.ConfigStd.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.agent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.CSRFToken(); token != "" {
		httpReq.Header.Set(CSRFHeader, token)
	}
	// Referer checking applies to anti-forgery validation over HTTPS
	httpReq.Header.Set("Referer", c.baseURL.Scheme+"://"+c.baseURL.Host+"/")

	return httpReq, nil
}

// endpointLabel replaces numeric path segments with ":id" to keep metric
// cardinality bounded
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
