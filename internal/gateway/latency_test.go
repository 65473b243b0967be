package gateway

import (
	"math"
	"testing"
	"time"
)

func ms(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	if s := lt.Snapshot(); s != (LatencyStats{}) {
		t.Errorf("empty tracker: expected zero stats, got %+v", s)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(ms(42.5))

	s := lt.Snapshot()
	if s.P50 != 42.5 || s.P95 != 42.5 || s.P99 != 42.5 {
		t.Errorf("single sample: got %+v, want all 42.5", s)
	}
	if s.Count != 1 {
		t.Errorf("count: got %d, want 1", s.Count)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(1000)
	for i := 1; i <= 100; i++ {
		lt.Record(ms(float64(i)))
	}

	s := lt.Snapshot()
	if math.Abs(s.P50-50.5) > 0.01 {
		t.Errorf("p50: got %f, expected 50.5", s.P50)
	}
	if math.Abs(s.P95-95.05) > 0.01 {
		t.Errorf("p95: got %f, expected 95.05", s.P95)
	}
	if math.Abs(s.P99-99.01) > 0.01 {
		t.Errorf("p99: got %f, expected 99.01", s.P99)
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10)

	// First 10 samples are evicted.
	for i := 1; i <= 20; i++ {
		lt.Record(ms(float64(i)))
	}

	s := lt.Snapshot()
	if s.Count != 10 {
		t.Fatalf("Count = %d, want 10", s.Count)
	}
	if math.Abs(s.P50-15.5) > 0.01 {
		t.Errorf("p50 after wraparound: got %f, expected 15.5", s.P50)
	}
}
