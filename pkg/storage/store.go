package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a state entry does not exist
var ErrNotFound = errors.New("not found")

// Cookie is the persisted form of an HTTP cookie
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Expired reports whether the cookie has a past expiry
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// Store defines the interface for client-local state
// Every entry is scoped by the API server URL
type Store interface {
	// Cookies
	SaveCookies(server string, cookies []Cookie) error
	LoadCookies(server string) ([]Cookie, error)
	DeleteCookies(server string) error

	// Active cluster
	SetActiveCluster(server string, clusterID int64) error
	GetActiveCluster(server string) (int64, error)
	ClearActiveCluster(server string) error

	// Utility
	Close() error
}

// Sealer encrypts values at rest. *security.SecretsManager implements it.
type Sealer interface {
	EncryptSecret(plaintext []byte) ([]byte, error)
	DecryptSecret(ciphertext []byte) ([]byte, error)
}
