package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/kvdeck/pkg/types"
)

// EtcdProber reports the etcd health of one cluster. keyspace.Browser
// implements it.
type EtcdProber interface {
	Health(ctx context.Context) (*types.EtcdHealth, error)
}

// EtcdChecker turns an etcd health report into a Result
type EtcdChecker struct {
	prober EtcdProber

	// Last is the most recent successful report
	Last *types.EtcdHealth
}

// NewEtcdChecker creates a checker over prober
func NewEtcdChecker(prober EtcdProber) *EtcdChecker {
	return &EtcdChecker{prober: prober}
}

// Check performs the etcd health check
func (e *EtcdChecker) Check(ctx context.Context) Result {
	start := time.Now()

	report, err := e.prober.Health(ctx)
	if err != nil {
		return failed(start, fmt.Sprintf("health probe failed: %v", err))
	}
	e.Last = report

	result := Result{
		Healthy:   report.Healthy,
		CheckedAt: start,
		Duration:  report.Latency,
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	switch {
	case len(report.Endpoints) == 0:
		result.Message = "no endpoint health reported"
	case report.Healthy:
		result.Message = fmt.Sprintf("%d/%d endpoints healthy", len(report.Endpoints), len(report.Endpoints))
	default:
		var down []string
		for _, ep := range report.Endpoints {
			if ep.Health {
				continue
			}
			if ep.Error != "" {
				down = append(down, fmt.Sprintf("%s (%s)", ep.Endpoint, ep.Error))
			} else {
				down = append(down, ep.Endpoint)
			}
		}
		result.Message = fmt.Sprintf("%d/%d endpoints unhealthy: %s",
			len(down), len(report.Endpoints), strings.Join(down, ", "))
	}
	return result
}

// Type returns the health check type
func (e *EtcdChecker) Type() CheckType {
	return CheckTypeEtcd
}
