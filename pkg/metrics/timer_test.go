package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Fatal("NewTimer() start time is zero")
	}

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	if first < 20*time.Millisecond {
		t.Errorf("Timer.Duration() = %v, want >= 20ms", first)
	}

	time.Sleep(5 * time.Millisecond)
	if second := timer.Duration(); second <= first {
		t.Errorf("Duration should increase: first=%v, second=%v", first, second)
	}
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_rpc_duration_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "status")
	timer.ObserveDurationVec(vec, "status")

	if got := testutil.CollectAndCount(vec); got != 1 {
		t.Errorf("expected 1 labelled series, got %d", got)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_aggregate_duration_seconds",
		Help: "Test duration histogram",
	})

	NewTimer().ObserveDuration(h)

	if got := testutil.CollectAndCount(h); got != 1 {
		t.Errorf("expected histogram to be collected once, got %d", got)
	}
}
