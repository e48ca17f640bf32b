package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// TLSOptions configure how the client verifies the API server
type TLSOptions struct {
	// CACert is a PEM bundle trusted in addition to the system roots
	CACert string

	// InsecureSkipVerify disables server certificate verification
	InsecureSkipVerify bool
}

// Enabled reports whether any option differs from the Go defaults
func (o TLSOptions) Enabled() bool {
	return o.CACert != "" || o.InsecureSkipVerify
}

// NewTLSConfig builds the client TLS configuration. It returns nil when
// no option is set so the transport keeps its defaults.
func NewTLSConfig(opts TLSOptions) (*tls.Config, error) {
	if !opts.Enabled() {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in via config
	}

	if opts.CACert != "" {
		pool, err := LoadCertPool(opts.CACert)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// LoadCertPool returns the system roots extended with every certificate
// in the PEM file at path
func LoadCertPool(path string) (*x509.CertPool, error) {
	certs, err := LoadCACertsFromFile(path)
	if err != nil {
		return nil, err
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}

// LoadCACertsFromFile parses every CERTIFICATE block of a PEM bundle
func LoadCACertsFromFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return certs, nil
}

// CertTimeRemaining returns the time remaining until certificate expiry
func CertTimeRemaining(cert *x509.Certificate) time.Duration {
	if cert == nil {
		return 0
	}
	return time.Until(cert.NotAfter)
}
