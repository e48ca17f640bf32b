package apitest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/go-chi/chi/v5"
)

const (
	// SessionCookie carries the session id
	SessionCookie = "sessionid"

	// CSRFCookie carries the anti-forgery token
	CSRFCookie = "csrftoken"

	// CSRFHeader must echo the CSRF cookie on unsafe methods
	CSRFHeader = "X-CSRFToken"

	// APIPrefix is where the routes are mounted
	APIPrefix = "/api"
)

type account struct {
	user     types.User
	password string
}

type cluster struct {
	record     types.Cluster
	kubeconfig string
	status     types.ClusterStatus
	etcd       map[string]string
	unhealthy  bool
}

type failure struct {
	status int
	body   string
	times  int
}

// Server is an in-memory management API. It keeps users, sessions,
// clusters and one etcd key-space per cluster, and counts every request
// by route.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	accounts    map[string]*account
	sessions    map[string]int64
	csrfTokens  map[string]bool
	clusters    map[int64]*cluster
	connections []types.ClusterConnection
	nextUserID  int64
	nextID      int64
	counts      map[string]int
	failures    map[string]*failure
	now         func() time.Time
}

// New starts a server and closes it when the test ends
func New(t testing.TB) *Server {
	t.Helper()
	s := NewUnstarted()
	s.Server = httptest.NewServer(s.Handler())
	t.Cleanup(s.Close)
	return s
}

// NewUnstarted creates a server without listening. Use Handler to mount it.
func NewUnstarted() *Server {
	return &Server{
		accounts:   make(map[string]*account),
		sessions:   make(map[string]int64),
		csrfTokens: make(map[string]bool),
		clusters:   make(map[int64]*cluster),
		counts:     make(map[string]int),
		failures:   make(map[string]*failure),
		now:        time.Now,
	}
}

// BaseURL returns the API base URL clients should use
func (s *Server) BaseURL() string {
	return s.URL + APIPrefix
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(s.csrfMiddleware)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf/", s.inject(s.handleCSRF))
			r.Post("/login/", s.inject(s.handleLogin))
			r.With(s.requireSession).Post("/logout/", s.inject(s.handleLogout))
			r.With(s.requireSession).Get("/me/", s.inject(s.handleMe))
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Route("/clusters", func(r chi.Router) {
				r.Get("/", s.inject(s.handleListClusters))
				r.Post("/", s.inject(s.handleCreateCluster))
				r.Post("/validate_kubeconfig/", s.inject(s.handleValidateKubeconfig))
				r.Get("/connections/", s.inject(s.handleListConnections))

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.inject(s.handleGetCluster))
					r.Patch("/", s.inject(s.handleUpdateCluster))
					r.Delete("/", s.inject(s.handleDeleteCluster))
					r.Get("/status/", s.inject(s.handleClusterStatus))
					r.Post("/test_connection/", s.inject(s.handleTestConnection))
				})
			})

			r.Route("/etcd/{id}", func(r chi.Router) {
				r.Get("/keys/", s.inject(s.handleKeys))
				r.Get("/tree/", s.inject(s.handleTree))
				r.Get("/kv/", s.inject(s.handleGetValue))
				r.Post("/kv/", s.inject(s.handlePutValue))
				r.Delete("/kv/", s.inject(s.handleDeleteKey))
				r.Get("/health/", s.inject(s.handleHealth))
			})
		})
	})

	return r
}

// route names a request by method and path relative to the API prefix,
// e.g. "GET /etcd/{id}/keys/". chi reports patterns without the trailing
// slash, so names are compared through routeKey.
func route(r *http.Request) string {
	pattern := chi.RouteContext(r.Context()).RoutePattern()
	return routeKey(r.Method + " " + strings.TrimPrefix(pattern, APIPrefix))
}

func routeKey(name string) string {
	return strings.TrimSuffix(name, "/")
}

// count records the request once routing has resolved its pattern.
// Requests rejected for a missing session or token are counted too.
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		name := route(r)
		s.mu.Lock()
		s.counts[name]++
		s.mu.Unlock()
	})
}

// inject serves a pending failure for the route instead of next
func (s *Server) inject(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := route(r)

		s.mu.Lock()
		f := s.failures[name]
		if f != nil {
			f.times--
			if f.times <= 0 {
				delete(s.failures, name)
			}
		}
		s.mu.Unlock()

		if f != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			io.WriteString(w, f.body)
			return
		}
		next(w, r)
	}
}

// Count returns how many requests reached route, e.g. "GET /auth/me/"
func (s *Server) Count(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[routeKey(route)]
}

// Fail makes the next times requests to route answer status with body
func (s *Server) Fail(route string, status int, body string, times int) {
	if times < 1 {
		times = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[routeKey(route)] = &failure{status: status, body: body, times: times}
}

// AddUser registers an account
func (s *Server) AddUser(username, password string) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u := types.User{
		ID:       s.nextUserID,
		Username: username,
		Email:    username + "@example.com",
	}
	s.accounts[username] = &account{user: u, password: password}
	return u
}

// ExpireSessions forgets every session, as a server restart or an
// expired cookie would
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]int64)
}

// SessionCount returns the number of live sessions
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// AddCluster registers a cluster with an empty key-space. The returned
// record carries the assigned id.
func (s *Server) AddCluster(name string, active bool) types.Cluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCluster(types.ClusterInput{Name: name, IsActive: &active}, "").record
}

func (s *Server) addCluster(in types.ClusterInput, createdBy string) *cluster {
	s.nextID++
	now := s.now().UTC()
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	version := "v1.29.0"
	nodes := 3
	c := &cluster{
		record: types.Cluster{
			ID:                s.nextID,
			Name:              in.Name,
			Description:       in.Description,
			IsActive:          active,
			CreatedAt:         now,
			UpdatedAt:         now,
			CreatedByUsername: createdBy,
		},
		kubeconfig: in.Kubeconfig,
		etcd:       make(map[string]string),
	}
	c.status = types.ClusterStatus{
		ClusterID:   c.record.ID,
		ClusterName: c.record.Name,
		IsConnected: true,
		Version:     &version,
		NodesCount:  &nodes,
	}
	s.clusters[c.record.ID] = c
	return c
}

// Disconnect makes the cluster report a failed connection
func (s *Server) Disconnect(clusterID int64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clusters[clusterID]; ok {
		c.status.IsConnected = false
		c.status.Version = nil
		c.status.NodesCount = nil
		c.status.Error = &reason
	}
}

// SetEtcdHealthy flips the health reported for the cluster's etcd
func (s *Server) SetEtcdHealthy(clusterID int64, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clusters[clusterID]; ok {
		c.unhealthy = !healthy
	}
}

// Put stores a key directly in a cluster's key-space
func (s *Server) Put(clusterID int64, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clusters[clusterID]; ok {
		c.etcd[key] = value
	}
}

// Keys returns a copy of a cluster's key-space
func (s *Server) Keys(clusterID int64) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if c, ok := s.clusters[clusterID]; ok {
		for k, v := range c.etcd {
			out[k] = v
		}
	}
	return out
}

// lookupCluster must be called with s.mu held
func (s *Server) lookupCluster(r *http.Request) (*cluster, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, false
	}
	c, ok := s.clusters[id]
	return c, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return sonic.ConfigStd.Unmarshal(body, v)
}

var notFound = map[string]string{"detail": "Not found."}
