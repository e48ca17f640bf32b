package transport

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/cuemby/kvdeck/pkg/storage"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// CookieStore persists the cookies of one API server between processes.
// storage.BoltStore and storage.MemoryStore implement it.
type CookieStore interface {
	SaveCookies(server string, cookies []storage.Cookie) error
	LoadCookies(server string) ([]storage.Cookie, error)
	DeleteCookies(server string) error
}

// PersistentJar is an http.CookieJar that mirrors the cookies set by the
// API server into a CookieStore after every change
type PersistentJar struct {
	mu     sync.Mutex
	inner  *cookiejar.Jar
	base   *url.URL
	store  CookieStore
	saved  map[string]storage.Cookie
	logger zerolog.Logger
}

// NewPersistentJar creates a jar for base and loads the cookies stored
// for it. A nil store keeps cookies in memory only.
func NewPersistentJar(base *url.URL, store CookieStore, logger *zerolog.Logger) (*PersistentJar, error) {
	inner, err := newCookieJar()
	if err != nil {
		return nil, err
	}

	j := &PersistentJar{
		inner: inner,
		base:  base,
		store: store,
		saved: make(map[string]storage.Cookie),
	}
	if logger != nil {
		j.logger = *logger
	} else {
		j.logger = log.WithComponent("transport")
	}

	if store == nil {
		return j, nil
	}

	// A jar that cannot be opened, e.g. after the key file was replaced,
	// is dropped and the user logs in again
	stored, err := store.LoadCookies(base.String())
	if err != nil {
		j.logger.Warn().Err(err).Msg("discarding unreadable stored session")
		if err := store.DeleteCookies(base.String()); err != nil {
			return nil, fmt.Errorf("failed to discard stored cookies: %w", err)
		}
		stored = nil
	}

	now := time.Now()
	restored := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.Expired(now) {
			continue
		}
		j.saved[cookieKey(c.Name, c.Path)] = c
		restored = append(restored, toHTTPCookie(c))
	}
	j.inner.SetCookies(base, restored)

	j.logger.Debug().Int("cookies", len(restored)).Msg("restored cookie jar")
	return j, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// Cookies implements http.CookieJar
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)

	if u.Host != j.base.Host {
		return
	}

	now := time.Now()
	changed := false
	for _, c := range cookies {
		sc := fromHTTPCookie(c, now)
		key := cookieKey(sc.Name, sc.Path)
		if c.MaxAge < 0 || sc.Expired(now) {
			if _, ok := j.saved[key]; ok {
				delete(j.saved, key)
				changed = true
			}
			continue
		}
		j.saved[key] = sc
		changed = true
	}

	if changed {
		j.persist()
	}
}

// Value returns the value of the named cookie sent to the base URL
func (j *PersistentJar) Value(name string) (string, bool) {
	for _, c := range j.Cookies(j.base) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Clear drops every cookie, in memory and in the store
func (j *PersistentJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	inner, err := newCookieJar()
	if err != nil {
		return err
	}
	j.inner = inner
	j.saved = make(map[string]storage.Cookie)

	if j.store == nil {
		return nil
	}
	if err := j.store.DeleteCookies(j.base.String()); err != nil {
		return fmt.Errorf("failed to delete stored cookies: %w", err)
	}
	return nil
}

// persist must be called with j.mu held
func (j *PersistentJar) persist() {
	if j.store == nil {
		return
	}

	cookies := make([]storage.Cookie, 0, len(j.saved))
	for _, c := range j.saved {
		cookies = append(cookies, c)
	}
	sort.Slice(cookies, func(a, b int) bool { return cookies[a].Name < cookies[b].Name })

	if err := j.store.SaveCookies(j.base.String(), cookies); err != nil {
		j.logger.Warn().Err(err).Msg("failed to persist cookies")
	}
}

func cookieKey(name, path string) string {
	return name + "\x00" + path
}

func fromHTTPCookie(c *http.Cookie, now time.Time) storage.Cookie {
	expires := c.Expires
	if c.MaxAge > 0 {
		expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	return storage.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

func toHTTPCookie(c storage.Cookie) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}
