package apitest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type browserClient struct {
	t      *testing.T
	http   *http.Client
	base   string
	server *Server
}

func newBrowserClient(t *testing.T, s *Server) *browserClient {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browserClient{t: t, http: &http.Client{Jar: jar}, base: s.BaseURL(), server: s}
}

func (c *browserClient) do(method, path, body string, csrf bool) (int, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, bytes.NewBufferString(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if csrf {
		for _, ck := range c.http.Jar.Cookies(req.URL) {
			if ck.Name == CSRFCookie {
				req.Header.Set(CSRFHeader, ck.Value)
			}
		}
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestLoginRequiresCSRF(t *testing.T) {
	s := New(t)
	s.AddUser("admin", "secret")
	c := newBrowserClient(t, s)

	status, body := c.do(http.MethodPost, "/auth/login/", `{"username":"admin","password":"secret"}`, false)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body, "CSRF")

	status, _ = c.do(http.MethodGet, "/auth/csrf/", "", false)
	require.Equal(t, http.StatusOK, status)

	status, body = c.do(http.MethodPost, "/auth/login/", `{"username":"admin","password":"secret"}`, true)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"username":"admin"`)
	assert.Equal(t, 1, s.SessionCount())

	status, _ = c.do(http.MethodGet, "/auth/me/", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, s.Count("GET /auth/me/"))
}

func TestSessionLifecycle(t *testing.T) {
	s := New(t)
	s.AddUser("admin", "secret")
	c := newBrowserClient(t, s)

	status, _ := c.do(http.MethodGet, "/auth/me/", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)

	c.do(http.MethodGet, "/auth/csrf/", "", false)
	status, body := c.do(http.MethodPost, "/auth/login/", `{"username":"admin","password":"wrong"}`, true)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid credentials")

	c.do(http.MethodPost, "/auth/login/", `{"username":"admin","password":"secret"}`, true)
	s.ExpireSessions()
	status, _ = c.do(http.MethodGet, "/clusters/", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 2, s.Count("GET /auth/me/")+s.Count("GET /clusters/"))
}

func TestEtcdRoutes(t *testing.T) {
	s := New(t)
	s.AddUser("admin", "secret")
	cl := s.AddCluster("dev", true)
	s.Put(cl.ID, "/config", "root")
	s.Put(cl.ID, "/config/a", "a")
	s.Put(cl.ID, "/configX", "x")

	c := newBrowserClient(t, s)
	c.do(http.MethodGet, "/auth/csrf/", "", false)
	c.do(http.MethodPost, "/auth/login/", `{"username":"admin","password":"secret"}`, true)

	status, body := c.do(http.MethodGet, "/etcd/1/keys/?prefix=/config/", "", false)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"keys":["/config/a"],"count":1}`, body)

	status, body = c.do(http.MethodGet, "/etcd/1/tree/?prefix=/", "", false)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"count":3,"tree":[
		{"name":"config","key":"/config","is_dir":true,"children":[{"name":"a","key":"/config/a","is_dir":false}]},
		{"name":"configX","key":"/configX","is_dir":false}]}`, body)

	status, _ = c.do(http.MethodDelete, "/etcd/1/kv/", `{"key":"/config","prefix":true}`, true)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, s.Keys(cl.ID))

	s.Fail("GET /etcd/{id}/health/", http.StatusInternalServerError, `{"success":false,"error":"etcdctl not found"}`, 1)
	status, _ = c.do(http.MethodGet, "/etcd/1/health/", "", false)
	assert.Equal(t, http.StatusInternalServerError, status)
	status, _ = c.do(http.MethodGet, "/etcd/1/health/", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, s.Count("GET /etcd/{id}/health/"))
}

func TestFailAndCountMatchRouteNames(t *testing.T) {
	s := New(t)
	c := newBrowserClient(t, s)

	s.Fail("GET /auth/csrf/", http.StatusInternalServerError, `{"detail":"down"}`, 1)
	status, body := c.do(http.MethodGet, "/auth/csrf/", "", false)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"detail":"down"}`, body)

	status, _ = c.do(http.MethodGet, "/auth/csrf/", "", false)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, 2, s.Count("GET /auth/csrf/"))
	assert.Equal(t, 2, s.Count("GET /auth/csrf"))

	s.AddCluster("dev", true)
	s.Fail("GET /clusters/{id}/status/", http.StatusBadGateway, `{}`, 1)
	c.do(http.MethodGet, "/auth/csrf/", "", false)
	s.AddUser("admin", "secret")
	c.do(http.MethodPost, "/auth/login/", `{"username":"admin","password":"secret"}`, true)
	status, _ = c.do(http.MethodGet, "/clusters/1/status/", "", false)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, 1, s.Count("GET /clusters/{id}/status/"))
}
