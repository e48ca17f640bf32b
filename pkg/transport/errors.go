package transport

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Error kinds. Every error returned by Client wraps exactly one of them.
var (
	// ErrAuthenticationLost means the server rejected the session (401)
	ErrAuthenticationLost = errors.New("authentication lost")

	// ErrInvalidCredentials means a login was rejected (401 on an anonymous request)
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTransport covers network failures, timeouts and undecodable replies
	ErrTransport = errors.New("transport failure")

	// ErrNotFound means the resource does not exist (404)
	ErrNotFound = errors.New("not found")

	// ErrValidation means the server refused the input (400, 422)
	ErrValidation = errors.New("validation failed")

	// ErrForbidden means the session may not perform the request (403)
	ErrForbidden = errors.New("forbidden")

	// ErrRemote covers every other server-side failure, including
	// {"success": false} replies
	ErrRemote = errors.New("remote error")
)

// Error describes a failed request
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Message    string

	// Kind is one of the Err* sentinels
	Kind error

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Method, e.Path, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// kindForStatus maps an HTTP status onto an error kind
func kindForStatus(status int, anonymous bool) error {
	switch {
	case status == http.StatusUnauthorized && anonymous:
		return ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return ErrAuthenticationLost
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrValidation
	default:
		return ErrRemote
	}
}

const maxMessageLen = 200

// serverMessage extracts a human readable message from an error body.
// It understands {"error": ...}, {"detail": ...}, {"message": ...} and
// field-keyed validation maps.
func serverMessage(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}

	var fields map[string]any
	if err := sonic.ConfigStd.Unmarshal(body, &fields); err != nil {
		return truncate(string(body))
	}

	for _, k := range []string{"error", "detail", "message"} {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "success" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+flatten(fields[k]))
	}
	return truncate(strings.Join(parts, "; "))
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen] + "..."
	}
	return s
}
