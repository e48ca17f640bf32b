package health

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CSRFPath is the unauthenticated endpoint the API checker probes
const CSRFPath = "/auth/csrf/"

// APIChecker probes the management API without a session. It never
// touches the session cookies, so a failing probe cannot log anyone out.
type APIChecker struct {
	// URL is the full probe URL (e.g., "http://localhost:8000/api/auth/csrf/")
	URL string

	// ExpectedStatusMin is the minimum acceptable HTTP status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable HTTP status code (default: 399)
	ExpectedStatusMax int

	// Client is the HTTP client to use
	Client *http.Client
}

// NewAPIChecker creates a checker for the API at baseURL. tlsConfig may
// be nil.
func NewAPIChecker(baseURL string, tlsConfig *tls.Config) *APIChecker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}
	return &APIChecker{
		URL:               strings.TrimSuffix(baseURL, "/") + CSRFPath,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

// Check performs the HTTP health check
func (h *APIChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return failed(start, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return failed(start, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax

	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}

	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (h *APIChecker) Type() CheckType {
	return CheckTypeAPI
}

// WithStatusRange sets the expected status code range
func (h *APIChecker) WithStatusRange(min, max int) *APIChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *APIChecker) WithTimeout(timeout time.Duration) *APIChecker {
	h.Client.Timeout = timeout
	return h
}
