package health

import (
	"context"
	"time"

	"github.com/cuemby/kvdeck/pkg/log"
	"github.com/rs/zerolog"
)

// Monitor runs a checker on an interval and folds the results into a
// Status
type Monitor struct {
	checker Checker
	config  Config
	logger  zerolog.Logger
}

// NewMonitor creates a monitor. Zero config fields take their defaults.
func NewMonitor(checker Checker, config Config, logger *zerolog.Logger) *Monitor {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Retries <= 0 {
		config.Retries = def.Retries
	}

	m := &Monitor{checker: checker, config: config}
	if logger != nil {
		m.logger = *logger
	} else {
		m.logger = log.WithComponent("health")
	}
	return m
}

// Run checks immediately and then every interval until ctx is done,
// passing a copy of the status to report after each check. It returns
// the final status.
func (m *Monitor) Run(ctx context.Context, report func(Status)) Status {
	status := NewStatus()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		m.checkOnce(ctx, status)
		if ctx.Err() != nil {
			return *status
		}
		if report != nil {
			report(*status)
		}

		select {
		case <-ctx.Done():
			return *status
		case <-ticker.C:
		}
	}
}

func (m *Monitor) checkOnce(ctx context.Context, status *Status) {
	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	wasHealthy := status.Healthy
	result := m.checker.Check(checkCtx)
	if ctx.Err() != nil {
		return
	}
	status.Update(result, m.config)

	switch {
	case wasHealthy && !status.Healthy:
		m.logger.Warn().
			Str("type", string(m.checker.Type())).
			Int("failures", status.ConsecutiveFailures).
			Str("message", result.Message).
			Msg("target became unhealthy")
	case !wasHealthy && status.Healthy:
		m.logger.Info().
			Str("type", string(m.checker.Type())).
			Msg("target recovered")
	}
}
