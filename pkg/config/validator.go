package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// MaxListLimit mirrors the API's page size cap
const MaxListLimit = 1000

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config key (e.g., "keyspace.list_limit")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateKeyspace()...)

	if !slices.Contains(ValidLogLevels(), c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.DataDir == "" {
		errs = append(errs, ValidationError{Field: "data_dir", Value: c.DataDir, Message: "must not be empty"})
	}

	return errs
}

func (c *Config) validateServer() []ValidationError {
	u, err := url.Parse(c.Server)
	switch {
	case err != nil:
		return []ValidationError{{Field: "server", Value: c.Server, Message: err.Error()}}
	case u.Scheme != "http" && u.Scheme != "https":
		return []ValidationError{{Field: "server", Value: c.Server, Message: "scheme must be http or https"}}
	case u.Host == "":
		return []ValidationError{{Field: "server", Value: c.Server, Message: "must include a host"}}
	}
	return nil
}

func (c *Config) validateTransport() []ValidationError {
	var errs []ValidationError
	if c.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "timeout", Value: c.Timeout, Message: "must be positive"})
	}
	if c.RateLimit <= 0 {
		errs = append(errs, ValidationError{Field: "rate_limit", Value: c.RateLimit, Message: "must be positive"})
	}
	if c.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "rate_burst", Value: c.RateBurst, Message: "must be at least 1"})
	}
	return errs
}

func (c *Config) validateKeyspace() []ValidationError {
	var errs []ValidationError
	if c.Keyspace.Delimiter == "" {
		errs = append(errs, ValidationError{Field: "keyspace.delimiter", Value: c.Keyspace.Delimiter, Message: "must not be empty"})
	}
	if c.Keyspace.ListLimit < 1 || c.Keyspace.ListLimit > MaxListLimit {
		errs = append(errs, ValidationError{
			Field:   "keyspace.list_limit",
			Value:   c.Keyspace.ListLimit,
			Message: fmt.Sprintf("must be between 1 and %d", MaxListLimit),
		})
	}
	if c.Keyspace.TreeLimit < 1 || c.Keyspace.TreeLimit > MaxListLimit {
		errs = append(errs, ValidationError{
			Field:   "keyspace.tree_limit",
			Value:   c.Keyspace.TreeLimit,
			Message: fmt.Sprintf("must be between 1 and %d", MaxListLimit),
		})
	}
	return errs
}
