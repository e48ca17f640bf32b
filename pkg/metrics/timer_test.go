package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}

	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}

	if time.Since(timer.start) > time.Second {
		t.Error("NewTimer() start time is not recent")
	}
}

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 20 * time.Millisecond
	time.Sleep(sleepDuration)

	if duration := timer.Duration(); duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	NewTimer().ObserveDuration(histogram)

	if got := testutil.CollectAndCount(histogram); got != 1 {
		t.Errorf("expected 1 collected histogram, got %d", got)
	}
}

// TestTimerObservesElapsedSeconds checks the recorded value is the timer's duration
func TestTimerObservesElapsedSeconds(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_elapsed_seconds",
		Help:    "Test elapsed histogram",
		Buckets: []float64{.001, .01, .1, 1},
	})

	timer := NewTimer()
	time.Sleep(15 * time.Millisecond)
	timer.ObserveDuration(histogram)

	var m dto.Metric
	if err := histogram.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Fatalf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.015 {
		t.Errorf("sample sum = %v, want >= 0.015", h.GetSampleSum())
	}
	// 15ms lands above the 10ms bucket
	if got := h.GetBucket()[1].GetCumulativeCount(); got != 0 {
		t.Errorf("10ms bucket count = %d, want 0", got)
	}
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_operation_duration_seconds",
			Help:    "Test operation duration histogram",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	NewTimer().ObserveDurationVec(histogramVec, "list")
	NewTimer().ObserveDurationVec(histogramVec, "put")

	if got := testutil.CollectAndCount(histogramVec); got != 2 {
		t.Errorf("expected 2 label sets, got %d", got)
	}
}

// TestMultipleTimers tests that multiple timers work independently
func TestMultipleTimers(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer2 := NewTimer()
	time.Sleep(10 * time.Millisecond)

	if timer1.Duration() <= timer2.Duration() {
		t.Error("timer1 should be running longer than timer2")
	}
}
