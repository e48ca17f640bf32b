package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/stretchr/testify/assert"
)

type stubProber struct {
	report *types.EtcdHealth
	err    error
}

func (s stubProber) Health(ctx context.Context) (*types.EtcdHealth, error) {
	return s.report, s.err
}

func TestEtcdChecker(t *testing.T) {
	tests := []struct {
		name    string
		prober  stubProber
		healthy bool
		message string
	}{
		{
			name: "all healthy",
			prober: stubProber{report: &types.EtcdHealth{
				Healthy:   true,
				Latency:   3 * time.Millisecond,
				Endpoints: []types.EndpointHealth{{Endpoint: "a", Health: true}, {Endpoint: "b", Health: true}},
			}},
			healthy: true,
			message: "2/2 endpoints healthy",
		},
		{
			name: "one down",
			prober: stubProber{report: &types.EtcdHealth{
				Endpoints: []types.EndpointHealth{{Endpoint: "a", Health: true}, {Endpoint: "b", Health: false, Error: "timeout"}},
			}},
			healthy: false,
			message: "1/2 endpoints unhealthy: b (timeout)",
		},
		{
			name:    "no endpoints",
			prober:  stubProber{report: &types.EtcdHealth{}},
			healthy: false,
			message: "no endpoint health reported",
		},
		{
			name:    "probe error",
			prober:  stubProber{err: errors.New("cluster unreachable")},
			healthy: false,
			message: "health probe failed: cluster unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewEtcdChecker(tt.prober)
			result := checker.Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy)
			assert.Equal(t, tt.message, result.Message)
			assert.Equal(t, CheckTypeEtcd, checker.Type())
		})
	}
}

func TestEtcdCheckerUsesReportedLatency(t *testing.T) {
	checker := NewEtcdChecker(stubProber{report: &types.EtcdHealth{
		Healthy:   true,
		Latency:   42 * time.Millisecond,
		Endpoints: []types.EndpointHealth{{Endpoint: "a", Health: true}},
	}})

	result := checker.Check(context.Background())
	assert.Equal(t, 42*time.Millisecond, result.Duration)
	assert.NotNil(t, checker.Last)
}
